package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/trenton/internal/app"
	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// RequestHandler serves the daemon methods. *app.App implements it.
type RequestHandler interface {
	AddFolder(ctx context.Context, path, filter string) (*app.AddFolderResult, error)
	RemoveFolder(ctx context.Context, id int64) (*app.RemoveFolderResult, error)
	ListFolders(ctx context.Context) ([]store.Folder, error)
	TriggerIndex(ctx context.Context, mode jobs.Mode, paths []string) (jobs.Job, error)
	GetJobStatus(id string) (jobs.Job, error)
	ListJobs() []jobs.Job
	CancelJob(id string) (jobs.Job, error)
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	SearchByMediaFile(ctx context.Context, path string, target media.Modality, topK int, threshold *float64) (*search.Response, error)
	SearchSimilarTo(ctx context.Context, fileID int64, topK int) (*search.Response, error)
	Health(ctx context.Context) app.HealthReport
	Stats(ctx context.Context) (*app.StatsReport, error)
}

var _ RequestHandler = (*app.App)(nil)

// params is implemented by every method's parameter struct.
type params interface {
	Validate() error
}

// Server listens on a Unix socket and answers one JSON-RPC request per
// connection.
type Server struct {
	socketPath string
	timeout    time.Duration
	listener   net.Listener
	handler    RequestHandler
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for cfg.
func NewServer(cfg Config, h RequestHandler) (*Server, error) {
	if h == nil {
		return nil, fmt.Errorf("daemon server requires a handler")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Server{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		handler:    h,
	}, nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
// In-flight requests finish before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A socket left by a crashed daemon blocks Listen.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	if resp.Error != nil {
		slog.Debug("rpc_failed",
			slog.String("method", req.Method),
			slog.Int("code", resp.Error.Code),
			slog.String("error", resp.Error.Message))
	} else {
		slog.Debug("rpc_ok",
			slog.String("method", req.Method),
			slog.Duration("took", time.Since(start)))
	}
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	h := s.handler

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status(ctx))

	case MethodFolderAdd:
		var p FolderAddParams
		return call(req, &p, func() (any, error) { return h.AddFolder(ctx, p.Path, p.Modality) })

	case MethodFolderRemove:
		var p FolderRemoveParams
		return call(req, &p, func() (any, error) { return h.RemoveFolder(ctx, p.ID) })

	case MethodFolderList:
		return respond(req.ID, func() (any, error) { return h.ListFolders(ctx) })

	case MethodIndexTrigger:
		var p IndexTriggerParams
		return call(req, &p, func() (any, error) { return h.TriggerIndex(ctx, p.Mode, p.Paths) })

	case MethodJobStatus:
		var p JobParams
		return call(req, &p, func() (any, error) {
			if p.ID == "" {
				return h.ListJobs(), nil
			}
			return h.GetJobStatus(p.ID)
		})

	case MethodJobCancel:
		var p JobParams
		return call(req, &p, func() (any, error) {
			if p.ID == "" {
				return nil, terrors.ValidationError("id is required", nil)
			}
			return h.CancelJob(p.ID)
		})

	case MethodSearch:
		var p SearchParams
		return call(req, &p, func() (any, error) {
			if p.MediaPath != "" {
				return h.SearchByMediaFile(ctx, p.MediaPath, p.Modality, p.TopK, p.Threshold)
			}
			return h.Search(ctx, search.Query{
				Vector:    p.Vector,
				Modality:  p.Modality,
				TopK:      p.TopK,
				Threshold: p.Threshold,
			})
		})

	case MethodSearchSimilar:
		var p SimilarParams
		return call(req, &p, func() (any, error) { return h.SearchSimilarTo(ctx, p.FileID, p.TopK) })

	case MethodStats:
		return respond(req.ID, func() (any, error) { return h.Stats(ctx) })

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// call decodes and validates req.Params into p, then runs fn.
func call(req Request, p params, fn func() (any, error)) Response {
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, p); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params: "+err.Error())
		}
	}
	if err := p.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	return respond(req.ID, fn)
}

func respond(id string, fn func() (any, error)) Response {
	result, err := fn()
	if err != nil {
		return errorResponse(id, err)
	}
	return NewSuccessResponse(id, result)
}

// status returns the current server status.
func (s *Server) status(ctx context.Context) StatusResult {
	h := s.handler.Health(ctx)
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Health:  h.Status,
		Checks:  h.Checks,
		Watcher: h.Watcher,
	}
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
