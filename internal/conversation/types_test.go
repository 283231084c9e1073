package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codibridge/codi/internal/channel"
)

const botID = "UBOT"

func TestRoleOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  channel.ThreadMessage
		want Role
	}{
		{name: "bot author", msg: channel.ThreadMessage{User: botID, Text: "anything"}, want: RoleAssistant},
		{name: "bot subtype", msg: channel.ThreadMessage{User: "U1", SubType: channel.SubTypeBotMessage}, want: RoleAssistant},
		{name: "bot id", msg: channel.ThreadMessage{BotID: "B1"}, want: RoleAssistant},
		{name: "user", msg: channel.ThreadMessage{User: "U1", Text: "<@UBOT> hi"}, want: RoleUser},
		{name: "empty bot id never matches", msg: channel.ThreadMessage{User: ""}, want: RoleUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bot := botID
			if tc.name == "empty bot id never matches" {
				bot = ""
			}
			assert.Equal(t, tc.want, RoleOf(tc.msg, bot))
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		text   string
		role   Role
		want   string
		wantOK bool
	}{
		{name: "user mention stripped", text: "<@UBOT> plot this ", role: RoleUser, want: "plot this", wantOK: true},
		{name: "every mention stripped", text: "<@UBOT> a <@UBOT> b", role: RoleUser, want: "a  b", wantOK: true},
		{name: "user without mention", text: "lunch?", role: RoleUser},
		{name: "other mention only", text: "<@UOTHER> hi", role: RoleUser},
		{name: "assistant without mention", text: "  here you go \n", role: RoleAssistant, want: "here you go", wantOK: true},
		{name: "assistant with mention", text: "<@UBOT> done", role: RoleAssistant, want: "done", wantOK: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := CleanText(tc.text, tc.role, botID)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithoutNewest(t *testing.T) {
	t.Parallel()

	history := []channel.ThreadMessage{{Timestamp: "1"}, {Timestamp: "2"}, {Timestamp: "3"}}

	assert.Equal(t, history[:2], WithoutNewest(history, ""))
	assert.Equal(t, history[:2], WithoutNewest(history, "9"))
	assert.Equal(t, []channel.ThreadMessage{{Timestamp: "1"}, {Timestamp: "3"}}, WithoutNewest(history, "2"))
	assert.Nil(t, WithoutNewest(nil, "1"))
	assert.Len(t, history, 3)
}

func TestResultEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Result{}.Empty())
	assert.False(t, Result{HasText: true}.Empty())
	assert.False(t, Result{Files: []string{"a"}}.Empty())
}
