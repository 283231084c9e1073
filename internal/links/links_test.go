package links

import (
	"reflect"
	"testing"
)

func TestURLs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "none", text: "hello there", want: nil},
		{name: "bare url is not bracketed", text: "see https://example.com", want: nil},
		{name: "single", text: "<@UBOT> summarize <http://example.com>", want: []string{"http://example.com"}},
		{
			name: "order and duplicates kept",
			text: "<https://b.example/x?y=1&z=2> then <http://a.example> and <https://b.example/x?y=1&z=2>",
			want: []string{"https://b.example/x?y=1&z=2", "http://a.example", "https://b.example/x?y=1&z=2"},
		},
		{name: "labelled link", text: "read <https://example.com/doc|the doc>", want: []string{"https://example.com/doc"}},
		{name: "bare percent", text: "<http://x.example/50%>", want: []string{"http://x.example/50%"}},
		{name: "caret and backslash", text: `<http://x.example/a^b\c>`, want: []string{`http://x.example/a^b\c`}},
		{name: "percent escapes", text: "<https://example.com/a%20b>", want: []string{"https://example.com/a%20b"}},
		{name: "mention is not a url", text: "<@U123> <#C123|general>", want: nil},
		{name: "mailto ignored", text: "<mailto:a@b.c>", want: nil},
		{name: "adjacent links", text: "<http://a.example><http://b.example>", want: []string{"http://a.example", "http://b.example"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := URLs(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("URLs(%q) = %#v, want %#v", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractKeepsRawToken(t *testing.T) {
	t.Parallel()

	got := Extract("x <https://example.com|label> y")
	if len(got) != 1 {
		t.Fatalf("expected one link, got %d", len(got))
	}
	if got[0].Raw != "<https://example.com|label>" {
		t.Fatalf("unexpected raw token: %q", got[0].Raw)
	}
	if got[0].URL != "https://example.com" {
		t.Fatalf("unexpected url: %q", got[0].URL)
	}
}
