package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/loom-ui/loom/internal/errors"
)

// ErrSerialization tags the best-effort persistence failure path. It is
// never returned from Set; it only appears in the warning log record.
var ErrSerialization = errors.New("E004", errors.CategoryPersistence, "state serialization failed")

// Sink is a durable destination for store snapshots. Save writes the whole
// flat path -> value mapping; there is no incremental format. Load returns
// an empty map, not an error, when nothing has been saved yet.
type Sink interface {
	Save(ctx context.Context, snapshot map[string]any) error
	Load(ctx context.Context) (map[string]any, error)
}

// Persistent is a Store that snapshots to a sink after every successful
// write. Persistence is best effort: a failed Save logs a warning and the
// in-memory write stands.
type Persistent struct {
	*Store
	sink   Sink
	logger *slog.Logger
}

// NewPersistent creates a persistent store seeded from the sink's last
// snapshot. Seeding does not notify subscribers (none can exist yet).
func NewPersistent(ctx context.Context, sink Sink, logger *slog.Logger, opts ...Option) (*Persistent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snapshot, err := sink.Load(ctx)
	if err != nil {
		return nil, err
	}
	s := New(opts...)
	s.seed(snapshot)
	return &Persistent{Store: s, sink: sink, logger: logger}, nil
}

// Set writes and then persists the full snapshot.
func (p *Persistent) Set(path string, value any) {
	p.Store.Set(path, value)
	p.persist()
}

// SetWithTTL writes with expiry and then persists the full snapshot.
// Expired entries are excluded from the snapshot at save time.
func (p *Persistent) SetWithTTL(path string, value any, ttl time.Duration) {
	p.Store.SetWithTTL(path, value, ttl)
	p.persist()
}

// Batch coalesces writes as usual and persists once at the end.
func (p *Persistent) Batch(fn func()) {
	p.Store.Batch(fn)
	p.persist()
}

func (p *Persistent) persist() {
	if err := p.sink.Save(context.Background(), p.Flatten()); err != nil {
		p.logger.Warn("state persistence failed",
			"code", ErrSerialization.Code,
			"error", err)
	}
}
