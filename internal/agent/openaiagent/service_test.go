package openaiagent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codibridge/codi/internal/agent"
)

const responseBody = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1700000000,
  "status": "completed",
  "model": "gpt-4.1",
  "parallel_tool_calls": true,
  "tool_choice": "auto",
  "tools": [],
  "output": [
    {"type": "code_interpreter_call", "id": "ci_1", "status": "completed", "container_id": "cntr_1", "code": "plot()"},
    {
      "type": "message",
      "id": "msg_1",
      "role": "assistant",
      "status": "completed",
      "content": [{
        "type": "output_text",
        "text": "Here is the chart.",
        "annotations": [
          {"type": "container_file_citation", "container_id": "cntr_1", "file_id": "cfile_9", "filename": "chart.png", "start_index": 0, "end_index": 4},
          {"type": "container_file_citation", "container_id": "cntr_1", "file_id": "cfile_9", "filename": "chart.png", "start_index": 5, "end_index": 9}
        ]
      }]
    }
  ]
}`

type fakeAPI struct {
	mu        sync.Mutex
	uploads   []string
	prompt    string
	deleted   []string
	toolsJSON string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/containers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cntr_1","object":"container","name":"codi","status":"running","created_at":1700000000}`)
	})
	mux.HandleFunc("POST /v1/containers/cntr_1/files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename+"="+string(body))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cfile_1","object":"container.file","container_id":"cntr_1","path":"/mnt/data/data.csv","source":"user","bytes":3,"created_at":1700000000}`)
	})
	mux.HandleFunc("POST /v1/responses", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string          `json:"input"`
			Tools json.RawMessage `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.prompt = req.Input
		f.toolsJSON = string(req.Tools)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responseBody)
	})
	mux.HandleFunc("GET /v1/containers/cntr_1/files/cfile_9/content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("\x89PNG-data"))
	})
	mux.HandleFunc("DELETE /v1/containers/cntr_1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, "cntr_1")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestService(t *testing.T, api *fakeAPI) *Service {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	svc, err := NewService(nil, Options{
		APIKey:         "sk-test",
		BaseURL:        srv.URL + "/v1/",
		Model:          "gpt-4.1",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})
	require.NoError(t, err)
	return svc
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	svc := newTestService(t, api)
	input := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(input, []byte("a,b"), 0o600))

	session, err := svc.Open(context.Background())
	require.NoError(t, err)

	reply, err := session.Generate(context.Background(), "plot it", []agent.InputFile{{Path: input, Name: "data.csv"}})
	require.NoError(t, err)
	assert.Equal(t, "Here is the chart.", reply.Content)
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "chart.png", reply.Files[0].Name())

	var buf bytes.Buffer
	require.NoError(t, reply.Files[0].WriteTo(context.Background(), &buf))
	assert.Equal(t, "\x89PNG-data", buf.String())

	require.NoError(t, session.Close(context.Background()))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"data.csv=a,b"}, api.uploads)
	assert.True(t, strings.HasPrefix(api.prompt, "plot it"))
	assert.Contains(t, api.prompt, "data.csv")
	assert.Contains(t, api.toolsJSON, `"code_interpreter"`)
	assert.Contains(t, api.toolsJSON, `"cntr_1"`)
	assert.Equal(t, []string{"cntr_1"}, api.deleted)
}

func TestGenerateWithoutTextUsesFilesPrompt(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	svc := newTestService(t, api)
	session, err := svc.Open(context.Background())
	require.NoError(t, err)
	_, err = session.Generate(context.Background(), "", nil)
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, filesOnlyPrompt, api.prompt)
}

func TestGenerateMissingInputFile(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeAPI{})
	session, err := svc.Open(context.Background())
	require.NoError(t, err)
	_, err = session.Generate(context.Background(), "x", []agent.InputFile{{Path: filepath.Join(t.TempDir(), "nope"), Name: "nope"}})
	require.Error(t, err)
}

func TestOpenFailsOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)
	svc, err := NewService(nil, Options{
		APIKey:         "sk-bad",
		BaseURL:        srv.URL + "/v1/",
		Model:          "gpt-4.1",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})
	require.NoError(t, err)
	_, err = svc.Open(context.Background())
	require.Error(t, err)
}

func TestNewServiceValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, Options{Model: "m"}); err == nil {
		t.Fatal("expected api key error")
	}
	if _, err := NewService(nil, Options{APIKey: "k"}); err == nil {
		t.Fatal("expected model error")
	}
}
