// Package conversation turns raw thread history into the single task the
// agent is asked to work on.
package conversation

import (
	"strings"

	"github.com/codibridge/codi/internal/channel"
)

// Role is derived from a thread message; it is never stored.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ScanOrder selects which end of the thread the reconstructor starts from.
type ScanOrder string

const (
	ScanOldestFirst ScanOrder = "oldest_first"
	ScanNewestFirst ScanOrder = "newest_first"
)

// Turn is a normalized, actionable message.
type Turn struct {
	Role Role
	Text string
}

// Result is the outcome of one reconstruction pass. HasText is false when no
// message in the thread was actionable; Files holds every staged attachment
// path either way.
type Result struct {
	Text    string
	HasText bool
	Files   []string
}

// Empty reports whether there is nothing for the agent to do.
func (r Result) Empty() bool {
	return !r.HasText && len(r.Files) == 0
}

// RoleOf classifies msg relative to the bot identity.
func RoleOf(msg channel.ThreadMessage, botUserID string) Role {
	if (botUserID != "" && msg.User == botUserID) || msg.IsBotMessage() {
		return RoleAssistant
	}
	return RoleUser
}

// CleanText strips the bot mention from text. User text that never mentions
// the bot is not addressed to it and yields false; assistant text is always
// kept.
func CleanText(text string, role Role, botUserID string) (string, bool) {
	token := channel.MentionToken(botUserID)
	mentioned := botUserID != "" && strings.Contains(text, token)
	if !mentioned && role != RoleAssistant {
		return "", false
	}
	if botUserID != "" {
		text = strings.ReplaceAll(text, token, "")
	}
	return strings.TrimSpace(text), true
}

// WithoutNewest drops the message the bot is replying under from history.
// That is the message stamped placeholderTS when it is present, and the last
// message otherwise.
func WithoutNewest(history []channel.ThreadMessage, placeholderTS string) []channel.ThreadMessage {
	if len(history) == 0 {
		return nil
	}
	if placeholderTS != "" {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Timestamp == placeholderTS {
				out := make([]channel.ThreadMessage, 0, len(history)-1)
				out = append(out, history[:i]...)
				return append(out, history[i+1:]...)
			}
		}
	}
	return history[:len(history)-1]
}
