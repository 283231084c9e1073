// Package staging owns the per-request directories that attachments are
// downloaded into and agent output is written to.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	requestsDir = "requests"
	inDir       = "in"
	outDir      = "out"
)

// Workspace is an isolated directory tree for one request:
// <root>/requests/<id>/{in,out}.
type Workspace struct {
	id   string
	root string

	mu      sync.Mutex
	taken   map[string]struct{}
	removed bool
}

// NewWorkspace creates the directory tree for requestID under dataRoot.
func NewWorkspace(dataRoot, requestID string) (*Workspace, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" || requestID != filepath.Base(requestID) || requestID == "." || requestID == ".." {
		return nil, fmt.Errorf("invalid request id %q", requestID)
	}
	base, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	root := filepath.Join(base, requestsDir, requestID)
	for _, dir := range []string{filepath.Join(root, inDir), filepath.Join(root, outDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	return &Workspace{id: requestID, root: root, taken: map[string]struct{}{}}, nil
}

func (w *Workspace) ID() string     { return w.id }
func (w *Workspace) Root() string   { return w.root }
func (w *Workspace) InDir() string  { return filepath.Join(w.root, inDir) }
func (w *Workspace) OutDir() string { return filepath.Join(w.root, outDir) }

// Reserve claims a path in the input directory for an attachment called name.
// The name is reduced to its base; a name already claimed in this workspace
// gets a numeric suffix before its extension ("a.csv", "a-1.csv", ...).
func (w *Workspace) Reserve(name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return "", ErrWorkspaceClosed
	}
	clean := SafeName(name)
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	candidate := clean
	for i := 1; ; i++ {
		if _, ok := w.taken[candidate]; !ok {
			break
		}
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	path, err := Join(w.InDir(), candidate)
	if err != nil {
		return "", err
	}
	w.taken[candidate] = struct{}{}
	return path, nil
}

// Release gives a reserved path back, removing whatever was written to it.
func (w *Workspace) Release(path string) {
	w.mu.Lock()
	delete(w.taken, filepath.Base(path))
	w.mu.Unlock()
	_ = os.Remove(path)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	w.mu.Lock()
	w.removed = true
	w.mu.Unlock()
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// SafeName reduces a platform-supplied file name to a single path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "attachment"
	}
	return name
}

// Join resolves name inside dir and rejects results that escape it.
func Join(dir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	joined := filepath.Join(dir, clean)
	if !strings.HasPrefix(joined, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	return joined, nil
}
