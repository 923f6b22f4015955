package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/session"
	"github.com/mariozechner/bytebox/pkg/workspace"
)

// Executor runs a request against the execution backend.
// *execution.Client satisfies it.
type Executor interface {
	Run(ctx context.Context, req execution.Request) execution.Result
}

// Runner coordinates a workspace and its run session.
// All methods are safe for concurrent use; the in-flight run only touches the
// runner through Complete.
type Runner struct {
	mu        sync.Mutex
	ws        *workspace.Workspace
	sess      session.Session
	executor  Executor
	stdin     string
	showInput bool
	subs      []chan View

	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger (slog.Default() by default).
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the time source used to stamp runs.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner for ws that sends runs to executor.
func New(ws *workspace.Workspace, executor Executor, opts ...Option) *Runner {
	r := &Runner{
		ws:       ws,
		executor: executor,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger snapshots the active buffer, language and stdin into a request and
// moves the session to pending. It is rejected while a run is pending.
func (r *Runner) Trigger() (execution.Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := execution.NewRequest(r.ws.ActiveLanguage(), r.ws.Buffer(), r.stdin)
	next, ok := r.sess.Trigger(req, r.now())
	if !ok {
		r.logger.Debug("Run rejected, another run is pending", "pendingID", r.sess.Request().ID)
		return execution.Request{}, false
	}
	r.sess = next
	r.logger.Info("Run triggered", "runID", req.ID, "language", req.LanguageID, "file", r.ws.ActiveFile())
	r.publishLocked()
	return req, true
}

// Complete resolves the pending run with res. It reports false when id is not
// the pending request.
func (r *Runner) Complete(id string, res execution.Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := r.sess.Resolve(id, res)
	if !ok {
		r.logger.Warn("Dropping result for a run that is not pending", "runID", id)
		return false
	}
	r.sess = next
	r.publishLocked()
	return true
}

// Start triggers a run and executes it in the background. It reports whether
// a run was started.
func (r *Runner) Start(ctx context.Context) bool {
	req, ok := r.Trigger()
	if !ok {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := r.executor.Run(ctx, req)
		r.Complete(req.ID, res)
	}()
	return true
}

// Wait blocks until every run started with Start has completed.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Dismiss closes the output of a resolved run.
func (r *Runner) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.State() != session.Resolved {
		return
	}
	r.sess = r.sess.Dismiss()
	r.publishLocked()
}

// SetInput replaces the stdin sent with the next run.
func (r *Runner) SetInput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdin = text
	r.publishLocked()
}

// ToggleInput shows or hides the stdin panel. The input is kept either way.
func (r *Runner) ToggleInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.showInput = !r.showInput
	r.publishLocked()
}

// Session returns the current run session.
func (r *Runner) Session() session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// Do runs fn against the workspace under the runner's lock and publishes the
// resulting view when fn succeeds.
func (r *Runner) Do(fn func(ws *workspace.Workspace) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.ws); err != nil {
		return err
	}
	r.publishLocked()
	return nil
}

// Subscribe returns a channel that receives a View after every change.
// Slow subscribers miss intermediate views rather than blocking the runner.
func (r *Runner) Subscribe() <-chan View {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan View, 10)
	r.subs = append(r.subs, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (r *Runner) Unsubscribe(ch <-chan View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub == ch {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (r *Runner) publishLocked() {
	if len(r.subs) == 0 {
		return
	}
	v := r.viewLocked()
	for _, sub := range r.subs {
		select {
		case sub <- v:
		default:
		}
	}
}
