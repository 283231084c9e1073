// Package slack connects the mention pipeline to Slack over Socket Mode and
// the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/codibridge/codi/internal/channel"
	"github.com/codibridge/codi/internal/logger"
)

const repliesPageSize = 200

// Config holds the two Slack credentials.
type Config struct {
	BotToken string
	AppToken string
	Debug    bool
	// APIURL overrides the Web API endpoint, mainly for tests. It must end in "/".
	APIURL string
}

// Adapter implements channel.Receiver, channel.ThreadReader, channel.Responder
// and channel.FileDownloader for one Slack workspace.
type Adapter struct {
	api    *slack.Client
	debug  bool
	logger *slog.Logger
}

func NewAdapter(log *slog.Logger, cfg Config) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is required")
	}
	log = log.With(slog.String("adapter", "slack"))
	opts := []slack.Option{
		slack.OptionLog(logger.StdLogger(log, slog.LevelDebug)),
		slack.OptionDebug(cfg.Debug),
	}
	if token := strings.TrimSpace(cfg.AppToken); token != "" {
		opts = append(opts, slack.OptionAppLevelToken(token))
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Adapter{
		api:    slack.New(strings.TrimSpace(cfg.BotToken), opts...),
		debug:  cfg.Debug,
		logger: log,
	}, nil
}

// BotUserID resolves the user id the bot token belongs to.
func (a *Adapter) BotUserID(ctx context.Context) (string, error) {
	resp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}
	if resp.UserID == "" {
		return "", errors.New("slack auth test returned no user id")
	}
	a.logger.Info("authenticated", slog.String("team", resp.Team), slog.String("user_id", resp.UserID))
	return resp.UserID, nil
}

// Connect opens a Socket Mode connection and dispatches app_mention events to
// handler, each on its own goroutine. Events are acknowledged before handling.
func (a *Adapter) Connect(ctx context.Context, handler channel.MentionHandler) (channel.Connection, error) {
	if handler == nil {
		return nil, errors.New("mention handler is required")
	}
	client := socketmode.New(a.api,
		socketmode.OptionDebug(a.debug),
		socketmode.OptionLog(logger.StdLogger(a.logger.With(slog.String("transport", "socketmode")), slog.LevelDebug)),
	)
	connCtx, cancel := context.WithCancel(ctx)
	var (
		wg       sync.WaitGroup
		handlers sync.WaitGroup
	)
	conn := channel.NewConnection(func(stopCtx context.Context) error {
		a.logger.Info("stop")
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			handlers.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := client.RunContext(connCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("socket mode stopped", slog.Any("error", err))
		}
		conn.MarkStopped()
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-connCtx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				a.dispatch(connCtx, client, evt, handler, &handlers)
			}
		}
	}()
	a.logger.Info("start")
	return conn, nil
}

func (a *Adapter) dispatch(ctx context.Context, client *socketmode.Client, evt socketmode.Event, handler channel.MentionHandler, handlers *sync.WaitGroup) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		a.logger.Debug("connecting")
	case socketmode.EventTypeConnectionError:
		a.logger.Warn("connection error", slog.Any("data", evt.Data))
	case socketmode.EventTypeConnected:
		a.logger.Info("connected")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			a.logger.Warn("unexpected events api payload", slog.String("type", fmt.Sprintf("%T", evt.Data)))
			return
		}
		if evt.Request != nil {
			client.Ack(*evt.Request)
		}
		mention, ok := mentionFromEvent(apiEvent)
		if !ok {
			return
		}
		a.logger.Info("mention received",
			slog.String("event_id", mention.EventID),
			slog.String("channel", mention.Channel),
			slog.String("user", mention.User),
			slog.String("thread_ts", mention.ThreadRoot()),
			slog.String("text", summarize(mention.Text)),
		)
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			if err := handler(ctx, mention); err != nil {
				a.logger.Error("handle mention failed", slog.String("event_id", mention.EventID), slog.Any("error", err))
			}
		}()
	}
}

func mentionFromEvent(apiEvent slackevents.EventsAPIEvent) (channel.MentionEvent, bool) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return channel.MentionEvent{}, false
	}
	ev, ok := apiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok || ev == nil {
		return channel.MentionEvent{}, false
	}
	eventID := ""
	if cb, ok := apiEvent.Data.(*slackevents.EventsAPICallbackEvent); ok && cb != nil {
		eventID = cb.EventID
	}
	return channel.MentionEvent{
		EventID:         eventID,
		Channel:         ev.Channel,
		User:            ev.User,
		Text:            ev.Text,
		Timestamp:       ev.TimeStamp,
		ThreadTimestamp: ev.ThreadTimeStamp,
	}, true
}

// ThreadReplies returns the whole thread rooted at threadTS, root included,
// following pagination cursors until Slack reports no more pages.
func (a *Adapter) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]channel.ThreadMessage, error) {
	var (
		out    []channel.ThreadMessage
		cursor string
	)
	for {
		msgs, hasMore, next, err := a.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Inclusive: true,
			Limit:     repliesPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.replies: %w", err)
		}
		for _, msg := range msgs {
			out = append(out, toThreadMessage(msg))
		}
		if !hasMore || next == "" || next == cursor {
			return out, nil
		}
		cursor = next
	}
}

func toThreadMessage(msg slack.Message) channel.ThreadMessage {
	out := channel.ThreadMessage{
		Timestamp: msg.Timestamp,
		User:      msg.User,
		Text:      msg.Text,
		SubType:   msg.SubType,
		BotID:     msg.BotID,
	}
	for _, f := range msg.Files {
		url := f.URLPrivate
		if url == "" {
			url = f.URLPrivateDownload
		}
		out.Files = append(out.Files, channel.FileRef{
			ID:         f.ID,
			Name:       f.Name,
			Mimetype:   f.Mimetype,
			Size:       f.Size,
			URLPrivate: url,
		})
	}
	return out
}

// Post sends text into the thread and returns the new message timestamp.
func (a *Adapter) Post(ctx context.Context, channelID, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := a.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage: %w", err)
	}
	return ts, nil
}

// Update replaces the text of the message at messageTS.
func (a *Adapter) Update(ctx context.Context, channelID, messageTS, text string) error {
	if _, _, _, err := a.api.UpdateMessageContext(ctx, channelID, messageTS, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("chat.update: %w", err)
	}
	return nil
}

// Upload shares the local file at path into the thread.
func (a *Adapter) Upload(ctx context.Context, channelID, threadTS, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("upload %s: file is empty", filepath.Base(path))
	}
	name := filepath.Base(path)
	_, err = a.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:          f,
		FileSize:        int(info.Size()),
		Filename:        name,
		Title:           name,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Download fetches a private file with the bot token. Non-success statuses
// surface as *channel.HTTPStatusError.
func (a *Adapter) Download(ctx context.Context, url string, w io.Writer) error {
	err := a.api.GetFileContext(ctx, url, w)
	if err == nil {
		return nil
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &channel.HTTPStatusError{StatusCode: statusErr.Code, Status: statusErr.Status}
	}
	return err
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const limit = 120
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
