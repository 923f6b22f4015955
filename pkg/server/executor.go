package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/sandbox"
)

// msgTooManyRequests is the service error of a run refused by the rate limit.
const msgTooManyRequests = "Too many requests"

// SandboxExecutor runs workspace requests directly against a sandbox.Manager,
// classifying the sandbox result the same way the HTTP client does.
type SandboxExecutor struct {
	sandbox sandbox.Manager
	timeout time.Duration
}

// NewSandboxExecutor creates an executor for sb with no extra deadline.
func NewSandboxExecutor(sb sandbox.Manager) *SandboxExecutor {
	return &SandboxExecutor{sandbox: sb}
}

// WithTimeout returns a copy of e that bounds every run by d.
func (e *SandboxExecutor) WithTimeout(d time.Duration) *SandboxExecutor {
	c := *e
	c.timeout = d
	return &c
}

// Run executes req in the sandbox and classifies the outcome.
func (e *SandboxExecutor) Run(ctx context.Context, req execution.Request) execution.Result {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res := e.run(ctx, req)
	res.Duration = time.Since(start)
	return res
}

func (e *SandboxExecutor) run(ctx context.Context, req execution.Request) execution.Result {
	out, err := e.sandbox.Run(ctx, req.LanguageID, req.Source, req.Stdin)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return execution.Timeout()
		}
		return execution.ServiceError(err.Error())
	}

	body, err := json.Marshal(out)
	if err != nil {
		return execution.ServiceError(err.Error())
	}
	return execution.Classify(body)
}

// limitedExecutor applies the POST /run rate limit and counters to runs
// started from one workspace socket.
type limitedExecutor struct {
	next    runner.Executor
	limiter *IPRateLimiter
	metrics *Metrics
	ip      string
	logger  *slog.Logger
}

func (e *limitedExecutor) Run(ctx context.Context, req execution.Request) execution.Result {
	if !e.limiter.Allow(e.ip) {
		e.metrics.incRateLimited()
		e.logger.Warn("Rate limit exceeded", "ip", e.ip, "runID", req.ID)
		return execution.ServiceError(msgTooManyRequests)
	}

	e.metrics.incRuns()
	res := e.next.Run(ctx, req)
	switch res.Kind {
	case execution.KindSuccess, execution.KindRuntimeError:
	default:
		e.metrics.incErrors()
	}
	return res
}
