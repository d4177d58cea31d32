package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// MinFileDescriptors is the minimum open-file limit. The watcher holds one
// descriptor per watched directory on platforms without inotify.
const MinFileDescriptors = 1024

// MinInotifyWatches is the inotify watch limit below which large media
// trees fall back to overflow rescans.
const MinInotifyWatches = 8192

// CheckFileDescriptors checks if the file descriptor limit is sufficient.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckInotifyWatches reads the per-user inotify watch limit. It passes on
// systems without inotify.
func (c *Checker) CheckInotifyWatches() CheckResult {
	result := CheckResult{
		Name:     "inotify_watches",
		Required: false,
	}

	data, err := os.ReadFile(c.inotifyPath)
	if os.IsNotExist(err) {
		result.Status = StatusPass
		result.Message = "not applicable"
		return result
	}
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read watch limit: %v", err)
		return result
	}

	limit, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unexpected watch limit %q", strings.TrimSpace(string(data)))
		return result
	}

	result.Message = fmt.Sprintf("%d (recommended: %d)", limit, MinInotifyWatches)
	if limit < MinInotifyWatches {
		result.Status = StatusWarn
		result.Details = "Raise fs.inotify.max_user_watches with sysctl, or serve with --polling"
		return result
	}
	result.Status = StatusPass
	return result
}
