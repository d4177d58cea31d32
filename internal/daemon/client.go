package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/trenton/internal/app"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/search"
	"github.com/Aman-CERP/trenton/internal/store"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.call(ctx, MethodPing, nil, &res)
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.call(ctx, MethodStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddFolder registers and indexes a folder.
func (c *Client) AddFolder(ctx context.Context, path, modality string) (*app.AddFolderResult, error) {
	var res app.AddFolderResult
	if err := c.call(ctx, MethodFolderAdd, FolderAddParams{Path: path, Modality: modality}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveFolder unregisters a folder.
func (c *Client) RemoveFolder(ctx context.Context, id int64) (*app.RemoveFolderResult, error) {
	var res app.RemoveFolderResult
	if err := c.call(ctx, MethodFolderRemove, FolderRemoveParams{ID: id}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListFolders returns every folder.
func (c *Client) ListFolders(ctx context.Context) ([]store.Folder, error) {
	var res []store.Folder
	if err := c.call(ctx, MethodFolderList, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// TriggerIndex submits an index job.
func (c *Client) TriggerIndex(ctx context.Context, mode jobs.Mode, paths []string) (jobs.Job, error) {
	var res jobs.Job
	err := c.call(ctx, MethodIndexTrigger, IndexTriggerParams{Mode: mode, Paths: paths}, &res)
	return res, err
}

// JobStatus returns one job.
func (c *Client) JobStatus(ctx context.Context, id string) (jobs.Job, error) {
	var res jobs.Job
	err := c.call(ctx, MethodJobStatus, JobParams{ID: id}, &res)
	return res, err
}

// ListJobs returns every retained job.
func (c *Client) ListJobs(ctx context.Context) ([]jobs.Job, error) {
	var res []jobs.Job
	if err := c.call(ctx, MethodJobStatus, JobParams{}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(ctx context.Context, id string) (jobs.Job, error) {
	var res jobs.Job
	err := c.call(ctx, MethodJobCancel, JobParams{ID: id}, &res)
	return res, err
}

// Search runs a vector or media-file query.
func (c *Client) Search(ctx context.Context, params SearchParams) (*search.Response, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res search.Response
	if err := c.call(ctx, MethodSearch, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SearchSimilar finds files similar to an indexed file.
func (c *Client) SearchSimilar(ctx context.Context, fileID int64, topK int) (*search.Response, error) {
	var res search.Response
	if err := c.call(ctx, MethodSearchSimilar, SimilarParams{FileID: fileID, TopK: topK}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns store and scheduler counters.
func (c *Client) Stats(ctx context.Context) (*app.StatsReport, error) {
	var res app.StatsReport
	if err := c.call(ctx, MethodStats, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// call sends one request on a fresh connection and decodes the result into
// out. A JSON-RPC error carrying a Trenton code comes back as that error.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID(),
	}
	if params != nil {
		req.Params, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error.Err()
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
