package preflight

import (
	"context"
	"fmt"
	"time"
)

// embedderCheckTimeout bounds the availability probe.
const embedderCheckTimeout = 5 * time.Second

// CheckEmbedder probes the embedder. An unavailable embedder is not
// critical: the daemon starts degraded and files fail until it recovers.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	if c.embedder == nil {
		result.Status = StatusWarn
		result.Message = "not configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, embedderCheckTimeout)
	defer cancel()

	result.Details = fmt.Sprintf("model %s, %d dimensions", c.embedder.ModelVersion(), c.embedder.Dimensions())
	if !c.embedder.Available(ctx) {
		result.Status = StatusFail
		result.Message = "unavailable"
		return result
	}
	result.Status = StatusPass
	result.Message = "available"
	return result
}
