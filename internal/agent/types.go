// Package agent drives one session with the remote code-interpreter agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNoTask is returned when there is neither text nor files to submit.
var ErrNoTask = errors.New("nothing to do")

// Stage names the step of a session that failed.
type Stage string

const (
	StageOpen     Stage = "open"
	StageGenerate Stage = "generate"
	StagePersist  Stage = "persist"
	StageClose    Stage = "close"
)

// Error wraps a session failure with the stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StageOf reports the failed stage of err, if it came from a session.
func StageOf(err error) (Stage, bool) {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Stage, true
	}
	return "", false
}

// Service opens sessions with the agent.
type Service interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a stateful interaction bounded by Open and Close.
type Session interface {
	Generate(ctx context.Context, text string, files []InputFile) (Reply, error)
	Close(ctx context.Context) error
}

// InputFile is a local file submitted with a request.
type InputFile struct {
	Path string
	Name string
}

// OutputFile is a file produced by the agent, readable while its session is open.
type OutputFile interface {
	Name() string
	WriteTo(ctx context.Context, w io.Writer) error
}

// Reply is what a session returns for one generate call.
type Reply struct {
	Content string
	Files   []OutputFile
}

// Response is a Reply with its files persisted locally, in reply order.
type Response struct {
	Content string
	Files   []string
}
