// Package app hosts components: it owns the render -> diff -> apply cycle,
// binds components to store paths and recovers failed cycles through a
// fallback tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loom-ui/loom/internal/metrics"
	"github.com/loom-ui/loom/pkg/live"
	"github.com/loom-ui/loom/pkg/state"
	"github.com/loom-ui/loom/pkg/vdom"
)

const tracerName = "loom"

// Runtime drives one mounted component tree. A cycle renders the
// component, diffs against the previous tree and applies the patches to
// the live tree. Cycles are serialized: a re-render triggered while one
// cycle is in flight waits for it, and any number of store writes landing
// before the next cycle collapse into a single follow-up pass.
type Runtime struct {
	comp     Component
	fallback Component

	mu   sync.Mutex // serializes cycles and guards last/tree
	last *vdom.VNode
	tree *live.Tree

	dirty chan struct{}

	subs    []*state.Subscription
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithFallback installs the error-boundary component. When a cycle fails,
// the live tree is replaced with the fallback's render instead of staying
// half-patched.
func WithFallback(c Component) RuntimeOption {
	return func(r *Runtime) { r.fallback = c }
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) RuntimeOption {
	return func(r *Runtime) { r.metrics = m }
}

// NewRuntime creates a runtime for the given component.
func NewRuntime(comp Component, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		comp:   comp,
		dirty:  make(chan struct{}, 1),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount performs the initial render and instantiates the live tree.
func (r *Runtime) Mount(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "loom.mount")
	defer span.End()

	tree, err := renderComponent(r.comp)
	if err != nil {
		return err
	}
	handle, err := live.Instantiate(tree)
	if err != nil {
		return err
	}
	old := r.tree
	r.last = tree
	r.tree = handle
	if old != nil {
		old.Retire()
	}
	return nil
}

// Tree returns the live output handle. Valid after Mount.
func (r *Runtime) Tree() *live.Tree {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree
}

// HTML serializes the current live tree, for SSR responses.
func (r *Runtime) HTML() string {
	t := r.Tree()
	if t == nil {
		return ""
	}
	return t.HTML()
}

// Bind subscribes the runtime to store paths: any write to one of them
// invalidates the component.
func (r *Runtime) Bind(s *state.Store, paths ...string) {
	for _, path := range paths {
		sub := s.Subscribe(path, func(state.Change) {
			if r.metrics != nil {
				r.metrics.StoreWrites.Inc()
			}
			r.Invalidate()
		})
		r.mu.Lock()
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
	}
}

// Invalidate schedules a re-render. Multiple calls before the next cycle
// coalesce into one pass.
func (r *Runtime) Invalidate() {
	select {
	case r.dirty <- struct{}{}:
	default:
		// Already scheduled
	}
}

// Run processes invalidations until the context is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Unmount()
			return
		case <-r.dirty:
			if err := r.Cycle(ctx); err != nil {
				r.logger.Error("render cycle failed", "error", err)
			}
		}
	}
}

// Unmount cancels all store subscriptions and retires the live tree so
// attached bridges drop their connections.
func (r *Runtime) Unmount() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	tree := r.tree
	r.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
	if tree != nil {
		tree.Retire()
	}
}

// Cycle runs one render -> diff -> apply pass. The pass is atomic from the
// caller's perspective: its patches are fully applied before any later
// cycle may start. A failed pass never corrupts the previously applied
// tree — it either leaves it untouched, re-instantiates from a fresh
// render, or falls back to the error boundary.
func (r *Runtime) Cycle(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tree == nil {
		return errors.New("runtime not mounted")
	}

	ctx, span := r.tracer.Start(ctx, "loom.render_cycle")
	defer span.End()
	started := time.Now()

	err := r.cycleLocked(ctx, span)

	if r.metrics != nil {
		r.metrics.CycleDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			r.metrics.CycleErrors.Inc()
		} else {
			r.metrics.CyclesTotal.Inc()
		}
	}
	if err != nil {
		return r.recoverLocked(err)
	}
	return nil
}

func (r *Runtime) cycleLocked(ctx context.Context, span trace.Span) error {
	_, renderSpan := r.tracer.Start(ctx, "render")
	next, err := renderComponent(r.comp)
	renderSpan.End()
	if err != nil {
		return err
	}

	_, diffSpan := r.tracer.Start(ctx, "diff")
	patches, err := vdom.Diff(r.last, next)
	diffSpan.End()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("loom.patches", len(patches)))
	if r.metrics != nil {
		for _, p := range patches {
			r.metrics.PatchesTotal.WithLabelValues(p.Op.String()).Inc()
		}
	}

	_, applySpan := r.tracer.Start(ctx, "apply")
	started := time.Now()
	err = r.tree.Apply(patches)
	applySpan.End()
	if r.metrics != nil {
		r.metrics.ApplyDuration.Observe(time.Since(started).Seconds())
	}

	if errors.Is(err, live.ErrPatchApplication) {
		// The live tree diverged from the contract; rebuild it from the
		// fresh render instead of attempting partial recovery.
		r.logger.Warn("patch application failed, re-instantiating", "error", err)
		handle, ierr := live.Instantiate(next)
		if ierr != nil {
			return ierr
		}
		old := r.tree
		r.tree = handle
		r.last = next
		old.Retire()
		return nil
	}
	if err != nil {
		return err
	}

	r.last = next
	return nil
}

// recoverLocked swaps in the fallback tree after a failed cycle so the
// output never stays half-patched. Store state is untouched.
func (r *Runtime) recoverLocked(cause error) error {
	if r.fallback == nil {
		return cause
	}
	fb, err := renderComponent(r.fallback)
	if err != nil {
		return fmt.Errorf("fallback render failed: %w (after: %w)", err, cause)
	}
	handle, err := live.Instantiate(fb)
	if err != nil {
		return fmt.Errorf("fallback instantiate failed: %w (after: %w)", err, cause)
	}
	old := r.tree
	r.tree = handle
	r.last = fb
	old.Retire()
	r.logger.Warn("render cycle failed, fallback applied", "error", cause)
	return nil
}

// renderComponent invokes Render with panic recovery so a misbehaving
// component fails the cycle instead of the process.
func renderComponent(c Component) (node *vdom.VNode, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("component panicked: %v", rec)
		}
	}()
	return c.Render(), nil
}
