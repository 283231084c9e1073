package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codibridge/codi/internal/agent"
)

const (
	errorPrefix    = "I can't provide a response. Encountered an error:\n`\n"
	errorSuffix    = "\n`"
	noTaskMessage  = "I couldn't find anything to work on in this thread. Mention me with a request or attach a file."
	emptyReplyText = "Done. The agent returned no text."
)

// ErrorMessage renders err as the reply posted into the thread. The error
// kind only changes the wording.
func ErrorMessage(err error, timeout time.Duration) string {
	return errorPrefix + errorDetail(err, timeout) + errorSuffix
}

func errorDetail(err error, timeout time.Duration) string {
	if err == nil {
		return "unknown error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if timeout > 0 {
			return fmt.Sprintf("the request timed out after %s", timeout)
		}
		return "the request timed out"
	}
	if stage, ok := agent.StageOf(err); ok {
		var agentErr *agent.Error
		errors.As(err, &agentErr)
		switch stage {
		case agent.StageOpen:
			return "could not start the code interpreter session: " + agentErr.Err.Error()
		case agent.StageGenerate:
			return "the code interpreter failed: " + agentErr.Err.Error()
		case agent.StagePersist:
			return "could not save the files the code interpreter produced: " + agentErr.Err.Error()
		case agent.StageClose:
			return "could not close the code interpreter session: " + agentErr.Err.Error()
		}
	}
	return err.Error()
}
