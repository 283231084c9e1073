// Package openaiagent implements agent.Service on OpenAI containers and the
// Responses API code interpreter tool.
package openaiagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/codibridge/codi/internal/agent"
)

const (
	containerNamePrefix = "codi-"
	annotationFile      = "container_file_citation"

	// Used when only files were shared in the thread.
	filesOnlyPrompt = "Take a look at the attached files and tell me what you find."
)

// Options configures the client.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	Instructions string
	// RequestOptions are appended after the key and base URL, mainly for tests.
	RequestOptions []option.RequestOption
}

// Service opens one container per session.
type Service struct {
	client       openai.Client
	model        string
	instructions string
	logger       *slog.Logger
}

func NewService(log *slog.Logger, opts Options) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openai model is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)
	return &Service{
		client:       openai.NewClient(reqOpts...),
		model:        opts.Model,
		instructions: strings.TrimSpace(opts.Instructions),
		logger:       log.With(slog.String("component", "openai_agent")),
	}, nil
}

// Open creates a fresh container that backs the session's code interpreter.
func (s *Service) Open(ctx context.Context) (agent.Session, error) {
	container, err := s.client.Containers.New(ctx, openai.ContainerNewParams{
		Name: containerNamePrefix + uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	s.logger.Debug("container created", slog.String("container_id", container.ID))
	return &session{service: s, containerID: container.ID}, nil
}

type session struct {
	service     *Service
	containerID string
}

func (s *session) Generate(ctx context.Context, text string, files []agent.InputFile) (agent.Reply, error) {
	for _, file := range files {
		if err := s.upload(ctx, file); err != nil {
			return agent.Reply{}, err
		}
	}
	if strings.TrimSpace(text) == "" {
		text = filesOnlyPrompt
	}
	if len(files) > 0 {
		names := make([]string, 0, len(files))
		for _, file := range files {
			names = append(names, file.Name)
		}
		text += "\n\nAttached files: " + strings.Join(names, ", ")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(s.service.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Tools: []responses.ToolUnionParam{{
			OfCodeInterpreter: &responses.ToolCodeInterpreterParam{
				Container: responses.ToolCodeInterpreterContainerUnionParam{
					OfString: openai.String(s.containerID),
				},
			},
		}},
	}
	if s.service.instructions != "" {
		params.Instructions = openai.String(s.service.instructions)
	}
	resp, err := s.service.client.Responses.New(ctx, params)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("create response: %w", err)
	}
	return agent.Reply{
		Content: resp.OutputText(),
		Files:   s.outputFiles(resp),
	}, nil
}

func (s *session) upload(ctx context.Context, file agent.InputFile) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer f.Close()
	contentType := mime.TypeByExtension(filepath.Ext(file.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.service.client.Containers.Files.New(ctx, s.containerID, openai.ContainerFileNewParams{
		File: openai.File(f, file.Name, contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}
	return nil
}

// outputFiles collects files cited by the reply, once each, in citation order.
func (s *session) outputFiles(resp *responses.Response) []agent.OutputFile {
	var files []agent.OutputFile
	seen := map[string]struct{}{}
	for _, item := range resp.Output {
		msg, ok := item.AsAny().(responses.ResponseOutputMessage)
		if !ok {
			continue
		}
		for _, part := range msg.Content {
			for _, ann := range part.Annotations {
				if ann.Type != annotationFile || ann.FileID == "" {
					continue
				}
				if _, dup := seen[ann.FileID]; dup {
					continue
				}
				seen[ann.FileID] = struct{}{}
				containerID := ann.ContainerID
				if containerID == "" {
					containerID = s.containerID
				}
				files = append(files, &containerFile{
					client:      &s.service.client,
					containerID: containerID,
					fileID:      ann.FileID,
					name:        ann.Filename,
				})
			}
		}
	}
	return files
}

func (s *session) Close(ctx context.Context) error {
	if err := s.service.client.Containers.Delete(ctx, s.containerID); err != nil {
		return fmt.Errorf("delete container %s: %w", s.containerID, err)
	}
	s.service.logger.Debug("container deleted", slog.String("container_id", s.containerID))
	return nil
}

type containerFile struct {
	client      *openai.Client
	containerID string
	fileID      string
	name        string
}

func (f *containerFile) Name() string {
	if f.name == "" {
		return f.fileID
	}
	return f.name
}

func (f *containerFile) WriteTo(ctx context.Context, w io.Writer) error {
	resp, err := f.client.Containers.Files.Content.Get(ctx, f.containerID, f.fileID)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: http %d", f.fileID, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", f.fileID, err)
	}
	return nil
}
