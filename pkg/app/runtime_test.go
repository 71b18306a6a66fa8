package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/loom-ui/loom/internal/metrics"
	"github.com/loom-ui/loom/pkg/state"
	"github.com/loom-ui/loom/pkg/vdom"
)

func label(s *state.Store) Component {
	return RenderFunc(func() *vdom.VNode {
		text, _ := s.Get("label", "initial").(string)
		return vdom.Div(vdom.Props{"class": "app"}, vdom.Text(text))
	})
}

func TestMountAndHTML(t *testing.T) {
	store := state.New()
	r := NewRuntime(label(store))

	if err := r.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := r.HTML(); got != `<div class="app">initial</div>` {
		t.Errorf("HTML() = %q", got)
	}
}

func TestCycleAppliesStoreChange(t *testing.T) {
	store := state.New()
	r := NewRuntime(label(store))
	ctx := context.Background()

	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	store.Set("label", "updated")
	if err := r.Cycle(ctx); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if got := r.HTML(); !strings.Contains(got, "updated") {
		t.Errorf("HTML() = %q, want the new label", got)
	}
}

func TestCycleBeforeMount(t *testing.T) {
	r := NewRuntime(RenderFunc(func() *vdom.VNode { return vdom.Div(nil) }))
	if err := r.Cycle(context.Background()); err == nil {
		t.Error("expected error from unmounted runtime")
	}
}

func TestRunCoalescesInvalidations(t *testing.T) {
	store := state.New()

	var mu sync.Mutex
	renders := 0
	comp := RenderFunc(func() *vdom.VNode {
		mu.Lock()
		renders++
		mu.Unlock()
		text, _ := store.Get("label", "initial").(string)
		return vdom.Div(nil, vdom.Text(text))
	})

	r := NewRuntime(comp)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	r.Bind(store, "label")

	// All three writes land before the loop starts, so they must
	// collapse into a single follow-up cycle.
	store.Set("label", "a")
	store.Set("label", "b")
	store.Set("label", "c")

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	got := renders
	mu.Unlock()
	if got != 2 { // mount + one coalesced cycle
		t.Errorf("renders = %d, want 2", got)
	}
	if html := r.HTML(); !strings.Contains(html, "c") {
		t.Errorf("HTML() = %q, want the final value", html)
	}
}

func TestFallbackOnPanickingComponent(t *testing.T) {
	var mu sync.Mutex
	explode := false

	comp := RenderFunc(func() *vdom.VNode {
		mu.Lock()
		defer mu.Unlock()
		if explode {
			panic("render exploded")
		}
		return vdom.Div(nil, vdom.Text("ok"))
	})
	fallback := RenderFunc(func() *vdom.VNode {
		return vdom.Div(vdom.Props{"class": "error"}, vdom.Text("something went wrong"))
	})

	r := NewRuntime(comp, WithFallback(fallback))
	ctx := context.Background()
	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	mu.Lock()
	explode = true
	mu.Unlock()

	if err := r.Cycle(ctx); err != nil {
		t.Fatalf("Cycle with fallback should not surface the panic: %v", err)
	}
	if got := r.HTML(); !strings.Contains(got, "something went wrong") {
		t.Errorf("HTML() = %q, want the fallback tree", got)
	}
}

func TestPanicWithoutFallbackSurfaces(t *testing.T) {
	var mu sync.Mutex
	explode := false
	comp := RenderFunc(func() *vdom.VNode {
		mu.Lock()
		defer mu.Unlock()
		if explode {
			panic("render exploded")
		}
		return vdom.Div(nil, vdom.Text("ok"))
	})

	r := NewRuntime(comp)
	ctx := context.Background()
	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	mu.Lock()
	explode = true
	mu.Unlock()

	if err := r.Cycle(ctx); err == nil {
		t.Error("expected the panic to surface as an error")
	}
	// The previous tree stays in place.
	if got := r.HTML(); !strings.Contains(got, "ok") {
		t.Errorf("HTML() = %q, want the pre-failure tree", got)
	}
}

func TestReinstantiateOnDivergedTree(t *testing.T) {
	store := state.New()
	comp := RenderFunc(func() *vdom.VNode {
		second, _ := store.Get("second", "two").(string)
		return vdom.Div(nil,
			vdom.Span(nil, vdom.Text("one")),
			vdom.Span(nil, vdom.Text(second)),
		)
	})

	r := NewRuntime(comp)
	ctx := context.Background()
	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	retired := false
	r.Tree().OnRetire(func() { retired = true })

	// Shrink the live tree behind the runtime's back so the next patch
	// list addresses a child that no longer exists.
	shrunk := vdom.Div(nil, vdom.Span(nil, vdom.Text("one")))
	patches, err := vdom.Diff(
		vdom.Div(nil,
			vdom.Span(nil, vdom.Text("one")),
			vdom.Span(nil, vdom.Text("two")),
		), shrunk)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Tree().Apply(patches); err != nil {
		t.Fatal(err)
	}

	store.Set("second", "changed")
	if err := r.Cycle(ctx); err != nil {
		t.Fatalf("Cycle should recover by re-instantiating: %v", err)
	}
	if got := r.HTML(); !strings.Contains(got, "changed") {
		t.Errorf("HTML() = %q, want the rebuilt tree", got)
	}
	if !retired {
		t.Error("replaced tree was not retired")
	}
}

func TestFallbackRetiresReplacedTree(t *testing.T) {
	var mu sync.Mutex
	explode := false
	comp := RenderFunc(func() *vdom.VNode {
		mu.Lock()
		defer mu.Unlock()
		if explode {
			panic("render exploded")
		}
		return vdom.Div(nil, vdom.Text("ok"))
	})
	fallback := RenderFunc(func() *vdom.VNode {
		return vdom.Div(nil, vdom.Text("fallback"))
	})

	r := NewRuntime(comp, WithFallback(fallback))
	ctx := context.Background()
	if err := r.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	retired := false
	r.Tree().OnRetire(func() { retired = true })

	mu.Lock()
	explode = true
	mu.Unlock()

	if err := r.Cycle(ctx); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if !retired {
		t.Error("tree replaced by the fallback was not retired")
	}
}

func TestUnmountRetiresTree(t *testing.T) {
	r := NewRuntime(label(state.New()))
	if err := r.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	retired := false
	r.Tree().OnRetire(func() { retired = true })

	r.Unmount()
	if !retired {
		t.Error("unmounted tree was not retired")
	}
}

func TestUnmountCancelsBindings(t *testing.T) {
	store := state.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := NewRuntime(label(store), WithMetrics(m))
	if err := r.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	r.Bind(store, "label")

	store.Set("label", "a")
	if got := testutil.ToFloat64(m.StoreWrites); got != 1 {
		t.Fatalf("store writes = %v, want 1", got)
	}

	r.Unmount()
	store.Set("label", "b")
	if got := testutil.ToFloat64(m.StoreWrites); got != 1 {
		t.Errorf("store writes = %v after unmount, want 1", got)
	}
}
