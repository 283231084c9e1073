package channel

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

// ErrStopNotSupported is returned when a connection does not support graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// MentionHandler is invoked for every mention event delivered by a Receiver.
type MentionHandler func(ctx context.Context, evt MentionEvent) error

// ThreadReader loads the history of a thread, root included, oldest first.
type ThreadReader interface {
	ThreadReplies(ctx context.Context, channelID, threadTS string) ([]ThreadMessage, error)
}

// Responder writes into a thread: a placeholder, its final text, and files.
type Responder interface {
	Post(ctx context.Context, channelID, threadTS, text string) (messageTS string, err error)
	Update(ctx context.Context, channelID, messageTS, text string) error
	Upload(ctx context.Context, channelID, threadTS, path string) error
}

// FileDownloader fetches a private file with the bot credential and writes the
// body to w. A non-success status is reported as *HTTPStatusError.
type FileDownloader interface {
	Download(ctx context.Context, url string, w io.Writer) error
}

// Receiver establishes a long-lived connection that delivers mention events.
type Receiver interface {
	Connect(ctx context.Context, handler MentionHandler) (Connection, error)
}

// Connection represents an active, long-lived link to the platform.
type Connection interface {
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is a default Connection implementation backed by a stop function.
type BaseConnection struct {
	stop    func(ctx context.Context) error
	running atomic.Bool
}

// NewConnection creates a BaseConnection for the given stop function.
func NewConnection(stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{stop: stop}
	conn.running.Store(true)
	return conn
}

// MarkStopped records that the underlying link went away on its own.
func (c *BaseConnection) MarkStopped() {
	c.running.Store(false)
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	c.running.Store(false)
	return c.stop(ctx)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
