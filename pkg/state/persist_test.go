package state

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

// memorySink records every snapshot it is handed.
type memorySink struct {
	saved   []map[string]any
	initial map[string]any
	saveErr error
	loadErr error
}

func (m *memorySink) Save(_ context.Context, snapshot map[string]any) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snapshot)
	return nil
}

func (m *memorySink) Load(context.Context) (map[string]any, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.initial == nil {
		return map[string]any{}, nil
	}
	return m.initial, nil
}

func TestPersistentSavesAfterEachWrite(t *testing.T) {
	sink := &memorySink{}
	p, err := NewPersistent(context.Background(), sink, nil)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	p.Set("user.name", "ada")
	p.Set("theme", "dark")

	if len(sink.saved) != 2 {
		t.Fatalf("saved %d snapshots, want 2", len(sink.saved))
	}
	want := map[string]any{"user.name": "ada", "theme": "dark"}
	if !reflect.DeepEqual(sink.saved[1], want) {
		t.Errorf("snapshot = %v, want %v", sink.saved[1], want)
	}
}

func TestPersistentSeedsFromSink(t *testing.T) {
	sink := &memorySink{initial: map[string]any{"user.name": "ada", "count": 3}}
	p, err := NewPersistent(context.Background(), sink, nil)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	if got := p.Get("user.name", ""); got != "ada" {
		t.Errorf("user.name = %v", got)
	}
	if got := p.Get("count", 0); got != 3 {
		t.Errorf("count = %v", got)
	}
	if len(sink.saved) != 0 {
		t.Error("seeding must not write back to the sink")
	}
}

func TestPersistentLoadFailureSurfaces(t *testing.T) {
	sink := &memorySink{loadErr: errors.New("backend down")}
	if _, err := NewPersistent(context.Background(), sink, nil); err == nil {
		t.Fatal("expected load error")
	}
}

func TestPersistentSaveFailureIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := &memorySink{saveErr: errors.New("disk full")}
	p, err := NewPersistent(context.Background(), sink, logger)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	p.Set("x", 1)

	// The in-memory write stands.
	if got := p.Get("x", nil); got != 1 {
		t.Errorf("Get() = %v, want 1", got)
	}
	if !bytes.Contains(buf.Bytes(), []byte("state persistence failed")) {
		t.Errorf("missing warning in log output: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("E004")) {
		t.Errorf("warning should carry the serialization code: %s", buf.String())
	}
}

func TestPersistentBatchSavesOnce(t *testing.T) {
	sink := &memorySink{}
	p, err := NewPersistent(context.Background(), sink, nil)
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	p.Batch(func() {
		p.Store.Set("a", 1)
		p.Store.Set("b", 2)
	})

	if len(sink.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(sink.saved))
	}
	want := map[string]any{"a": 1, "b": 2}
	if !reflect.DeepEqual(sink.saved[0], want) {
		t.Errorf("snapshot = %v, want %v", sink.saved[0], want)
	}
}

func TestPersistentSnapshotExcludesExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	sink := &memorySink{}
	p, err := NewPersistent(context.Background(), sink, nil,
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewPersistent: %v", err)
	}

	p.SetWithTTL("session", "tok", time.Second)
	now = now.Add(time.Minute)
	p.Set("theme", "dark")

	last := sink.saved[len(sink.saved)-1]
	if _, ok := last["session"]; ok {
		t.Errorf("expired entry persisted: %v", last)
	}
	if last["theme"] != "dark" {
		t.Errorf("snapshot = %v", last)
	}
}
