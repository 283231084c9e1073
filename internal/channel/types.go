// Package channel defines the platform-neutral shapes exchanged between the
// messaging adapter and the mention-handling pipeline.
package channel

import (
	"fmt"
	"strings"
)

// SubTypeBotMessage marks a message posted by an integration rather than a user.
const SubTypeBotMessage = "bot_message"

// FileRef describes a file attached to a thread message.
type FileRef struct {
	ID       string
	Name     string
	Mimetype string
	Size     int
	// URLPrivate requires the bot credential to download.
	URLPrivate string
}

// ThreadMessage is one record of a thread's history, immutable as received.
type ThreadMessage struct {
	Timestamp string
	User      string
	Text      string
	SubType   string
	BotID     string
	Files     []FileRef
}

// IsBotMessage reports whether the platform tagged the message as bot-originated.
func (m ThreadMessage) IsBotMessage() bool {
	return m.SubType == SubTypeBotMessage || strings.TrimSpace(m.BotID) != ""
}

// HasFiles reports whether the message carries attachments.
func (m ThreadMessage) HasFiles() bool {
	return len(m.Files) > 0
}

// MentionEvent is an inbound event fired when a message references the bot.
type MentionEvent struct {
	EventID         string
	Channel         string
	User            string
	Text            string
	Timestamp       string
	ThreadTimestamp string
}

// ThreadRoot returns the timestamp of the thread the event belongs to.
// A mention outside a thread starts one rooted at the event itself.
func (e MentionEvent) ThreadRoot() string {
	if ts := strings.TrimSpace(e.ThreadTimestamp); ts != "" {
		return ts
	}
	return strings.TrimSpace(e.Timestamp)
}

// MentionToken returns the in-text reference to userID, e.g. "<@U123>".
func MentionToken(userID string) string {
	return "<@" + userID + ">"
}

// HTTPStatusError is returned by downloaders when the platform answers with a
// non-success status.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected http status %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("unexpected http status %d", e.StatusCode)
}
