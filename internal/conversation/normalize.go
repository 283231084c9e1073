package conversation

import (
	"context"
	"log/slog"

	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/links"
)

// Augmenter folds the content of linked pages into message text.
type Augmenter interface {
	Augment(ctx context.Context, text string, found []links.Link) string
}

// Normalizer decides whether a thread message is part of the exchange with
// the bot and produces its cleaned text.
type Normalizer struct {
	augmenter Augmenter
	logger    *slog.Logger
}

func NewNormalizer(log *slog.Logger, augmenter Augmenter) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		augmenter: augmenter,
		logger:    log.With(slog.String("component", "normalizer")),
	}
}

// Normalize returns the turn for msg, or false when msg is a user message that
// does not address the bot. Links in user messages are expanded before the
// mention is stripped.
func (n *Normalizer) Normalize(ctx context.Context, msg channel.ThreadMessage, botUserID string) (Turn, bool) {
	role := RoleOf(msg, botUserID)
	text := msg.Text
	if role == RoleUser && n.augmenter != nil {
		if found := links.Extract(text); len(found) > 0 {
			n.logger.Debug("augmenting message", slog.String("ts", msg.Timestamp), slog.Int("links", len(found)))
			text = n.augmenter.Augment(ctx, text, found)
		}
	}
	cleaned, ok := CleanText(text, role, botUserID)
	if !ok {
		return Turn{}, false
	}
	return Turn{Role: role, Text: cleaned}, true
}
