// Package links finds the angle-bracket URLs a messaging platform embeds in
// message text, e.g. "<https://example.com>" or "<https://example.com|label>".
package links

import "regexp"

// linkPattern matches http(s) URLs wrapped in angle brackets with an optional
// "|label" suffix. The URL may hold any of the printable ASCII punctuation
// Slack leaves in place, a bare "%" included; angle brackets, whitespace and
// the label separator end it.
var linkPattern = regexp.MustCompile(`<(https?://[A-Za-z0-9$%&'()*+,\-./:;=?@\[\\\]^_!#~]+)(?:\|[^<>]*)?>`)

// Link is one bracketed URL occurrence.
type Link struct {
	URL string
	// Raw is the full token as it appears in the text, brackets included.
	Raw string
}

// Extract returns every bracketed URL in order of appearance. Duplicates are
// kept. It returns nil when the text has none.
func Extract(text string) []Link {
	matches := linkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Link, 0, len(matches))
	for _, m := range matches {
		out = append(out, Link{URL: m[1], Raw: m[0]})
	}
	return out
}

// URLs is Extract reduced to the URL strings.
func URLs(text string) []string {
	found := Extract(text)
	if found == nil {
		return nil
	}
	urls := make([]string, len(found))
	for i, l := range found {
		urls[i] = l.URL
	}
	return urls
}
