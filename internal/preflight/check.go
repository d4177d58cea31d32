// Package preflight verifies that the host can run the daemon before it
// starts: the data directory is writable and has room, descriptor and
// watch limits are high enough for folder watching, and the embedder
// answers.
//
//	checker := preflight.New(dataDir, preflight.WithEmbedder(e))
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/trenton/internal/embed"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

const inotifyWatchesPath = "/proc/sys/fs/inotify/max_user_watches"

// Checker performs preflight validation checks.
type Checker struct {
	dataDir     string
	embedder    embed.Embedder
	minDisk     uint64
	inotifyPath string
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder checks e for availability. Without it the embedder check
// warns.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) {
		c.embedder = e
	}
}

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(n uint64) Option {
	return func(c *Checker) {
		c.minDisk = n
	}
}

// New creates a Checker for the data directory dataDir.
func New(dataDir string, opts ...Option) *Checker {
	c := &Checker{
		dataDir:     dataDir,
		minDisk:     MinDiskSpaceBytes,
		inotifyPath: inotifyWatchesPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check. The data directory is created first so the
// disk check has a path to inspect.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	return []CheckResult{
		c.CheckWritePermissions(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
		c.CheckInotifyWatches(),
		c.CheckEmbedder(ctx),
	}
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckWritePermissions creates the data directory if needed and checks
// that a file can be written in it.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
		Details:  c.dataDir,
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	testFile := filepath.Join(c.dataDir, ".trenton-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "writable"
	return result
}
