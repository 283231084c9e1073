package staging

import "errors"

var (
	// ErrPathTraversal indicates a file name attempted to leave its workspace.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrFileTooLarge indicates an attachment exceeded the configured max size.
	ErrFileTooLarge = errors.New("attachment too large")
	// ErrWorkspaceClosed is returned for operations on a removed workspace.
	ErrWorkspaceClosed = errors.New("workspace removed")
)
