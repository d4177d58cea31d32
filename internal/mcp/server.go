package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
	"github.com/Aman-CERP/trenton/pkg/version"
)

// API is the subset of the application the tools call. *app.App implements it.
type API interface {
	ListFolders(ctx context.Context) ([]store.Folder, error)
	TriggerIndex(ctx context.Context, mode jobs.Mode, paths []string) (jobs.Job, error)
	GetJobStatus(id string) (jobs.Job, error)
	ListJobs() []jobs.Job
	SearchSimilarTo(ctx context.Context, fileID int64, topK int) (*search.Response, error)
	SearchByMediaFile(ctx context.Context, path string, target media.Modality, topK int, threshold *float64) (*search.Response, error)
	Health(ctx context.Context) app.HealthReport
	Stats(ctx context.Context) (*app.StatsReport, error)
}

var _ API = (*app.App)(nil)

// Server is the MCP server for Trenton.
type Server struct {
	mcp    *mcp.Server
	api    API
	logger *slog.Logger
	tools  map[string]toolEntry
	order  []ToolInfo
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

type toolEntry struct {
	call func(ctx context.Context, args json.RawMessage) (any, error)
}

// NewServer creates a new MCP server over api.
func NewServer(api API) (*Server, error) {
	if api == nil {
		return nil, errors.New("api is required")
	}

	s := &Server{
		api:    api,
		logger: slog.Default(),
		tools:  make(map[string]toolEntry),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Trenton",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), s.order...)
}

// CallTool invokes a tool by name with JSON-style arguments and returns its
// structured output.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	entry, ok := s.tools[name]
	if !ok {
		return nil, NewMethodNotFoundError(name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}
	return entry.call(ctx, raw)
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	addTool(s, &mcp.Tool{
		Name:        "search_similar",
		Description: "Find indexed audio or video files similar to an already indexed file, identified by its file id. Results are ranked by cosine similarity and include files deleted from disk, flagged as deleted.",
	}, s.searchSimilar, func(out SearchOutput) string { return FormatSearchResults("similar files", out) })

	addTool(s, &mcp.Tool{
		Name:        "search_media",
		Description: "Find indexed files similar to an audio or video file on disk. The query file does not need to be indexed. Cross-modal search is allowed by naming a different modality.",
	}, s.searchMedia, func(out SearchOutput) string { return FormatSearchResults("media query", out) })

	addTool(s, &mcp.Tool{
		Name:        "trigger_index",
		Description: "Start an index job. Full mode reconciles every registered folder and only one can run at a time; incremental mode reindexes the given files or directories.",
	}, s.triggerIndex, FormatJobs)

	addTool(s, &mcp.Tool{
		Name:        "job_status",
		Description: "Report the state and progress of an index job, or of every retained job when no id is given.",
	}, s.jobStatus, FormatJobs)

	addTool(s, &mcp.Tool{
		Name:        "list_folders",
		Description: "List the folders registered for indexing with their modality filter and watch state.",
	}, s.listFolders, FormatFolders)

	addTool(s, &mcp.Tool{
		Name:        "index_status",
		Description: "Check index health and size: store, embedder and watcher checks plus file counts by modality.",
	}, s.indexStatus, FormatIndexStatus)

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.order)))
}

// addTool registers fn with the SDK and with CallTool. The SDK result carries
// render's markdown as text content next to the structured output.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fn func(context.Context, In) (Out, error), render func(Out) string) {
	name := tool.Name
	run := func(ctx context.Context, in In) (Out, error) {
		start := time.Now()
		requestID := generateRequestID()
		out, err := fn(ctx, in)
		if err != nil {
			s.logger.Warn("tool failed",
				slog.String("tool", name),
				slog.String("request_id", requestID),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()))
			var zero Out
			return zero, MapError(err)
		}
		s.logger.Info("tool completed",
			slog.String("tool", name),
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)))
		return out, nil
	}

	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		out, err := run(ctx, in)
		if err != nil {
			return nil, out, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: render(out)}},
		}, out, nil
	})

	s.tools[name] = toolEntry{call: func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in In
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
		out, err := run(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}}
	s.order = append(s.order, ToolInfo{Name: name, Description: tool.Description})
	s.logger.Debug("Registered tool", slog.String("name", name))
}

func (s *Server) searchSimilar(ctx context.Context, in SearchSimilarInput) (SearchOutput, error) {
	if in.FileID <= 0 {
		return SearchOutput{}, NewInvalidParamsError("file_id parameter is required")
	}
	resp, err := s.api.SearchSimilarTo(ctx, in.FileID, in.TopK)
	if err != nil {
		return SearchOutput{}, err
	}
	return toSearchOutput(resp), nil
}

func (s *Server) searchMedia(ctx context.Context, in SearchMediaInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Path) == "" {
		return SearchOutput{}, NewInvalidParamsError("path parameter is required")
	}
	resp, err := s.api.SearchByMediaFile(ctx, in.Path, media.Modality(in.Modality), in.TopK, in.Threshold)
	if err != nil {
		return SearchOutput{}, err
	}
	return toSearchOutput(resp), nil
}

func (s *Server) triggerIndex(ctx context.Context, in TriggerIndexInput) (JobsOutput, error) {
	job, err := s.api.TriggerIndex(ctx, jobs.Mode(in.Mode), in.Paths)
	if err != nil {
		return JobsOutput{}, err
	}
	return JobsOutput{Jobs: []JobOutput{toJobOutput(job)}}, nil
}

func (s *Server) jobStatus(_ context.Context, in JobStatusInput) (JobsOutput, error) {
	if in.ID == "" {
		all := s.api.ListJobs()
		out := JobsOutput{Jobs: make([]JobOutput, 0, len(all))}
		for _, j := range all {
			out.Jobs = append(out.Jobs, toJobOutput(j))
		}
		return out, nil
	}
	job, err := s.api.GetJobStatus(in.ID)
	if err != nil {
		return JobsOutput{}, err
	}
	return JobsOutput{Jobs: []JobOutput{toJobOutput(job)}}, nil
}

func (s *Server) listFolders(ctx context.Context, _ ListFoldersInput) (FoldersOutput, error) {
	folders, err := s.api.ListFolders(ctx)
	if err != nil {
		return FoldersOutput{}, err
	}
	out := FoldersOutput{Folders: make([]FolderOutput, 0, len(folders))}
	for _, f := range folders {
		out.Folders = append(out.Folders, toFolderOutput(f))
	}
	return out, nil
}

func (s *Server) indexStatus(ctx context.Context, _ IndexStatusInput) (IndexStatusOutput, error) {
	stats, err := s.api.Stats(ctx)
	if err != nil {
		return IndexStatusOutput{}, err
	}
	return toIndexStatus(s.api.Health(ctx), stats), nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
