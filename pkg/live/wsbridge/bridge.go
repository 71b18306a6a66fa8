// Package wsbridge mirrors a live tree to a browser over a websocket.
// Patch lists applied to the tree stream out as JSON frames; DOM events
// come back as typed records and dispatch into the tree's handlers.
package wsbridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loom-ui/loom/pkg/live"
	"github.com/loom-ui/loom/pkg/render"
	"github.com/loom-ui/loom/pkg/vdom"
)

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Frame is one patch batch on the wire. Seq increases per frame so the
// client can detect gaps and request a resync.
type Frame struct {
	Seq     uint64      `json:"seq"`
	Patches []WirePatch `json:"patches"`
}

// WirePatch is the serialized form of one patch. Subtrees travel as
// rendered markup; handler props have no wire representation — events
// dispatch by path instead.
type WirePatch struct {
	Op      string            `json:"op"`
	Path    []int             `json:"path"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Added   map[string]string `json:"added,omitempty"`
	Removed []string          `json:"removed,omitempty"`
	From    int               `json:"from,omitempty"`
	To      int               `json:"to,omitempty"`
}

// wireEvent is the inbound event record.
type wireEvent struct {
	Path    []int  `json:"path"`
	Type    string `json:"type"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

// Bridge connects one websocket to one live tree generation. When the
// runtime replaces its tree (fallback or re-instantiate), the retired
// tree's hook closes the connection; the client reconnects and a new
// bridge attaches to the new tree.
type Bridge struct {
	conn   *websocket.Conn
	tree   *live.Tree
	logger *slog.Logger
	sendCh chan Frame
	seq    atomic.Uint64

	cancelPatches func()
	cancelRetire  func()
}

// New attaches a bridge to the tree and starts observing its patches.
// Run detaches the observers again on exit; a bridge that never runs
// must call Detach itself.
func New(conn *websocket.Conn, tree *live.Tree, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		conn:   conn,
		tree:   tree,
		logger: logger,
		sendCh: make(chan Frame, sendBuffer),
	}
	b.cancelPatches = tree.OnPatches(b.enqueue)
	b.cancelRetire = tree.OnRetire(func() {
		// Kicks ReadJSON in Run, which then detaches.
		conn.Close()
	})
	return b
}

// Detach deregisters the bridge from its tree. Idempotent.
func (b *Bridge) Detach() {
	b.cancelPatches()
	b.cancelRetire()
}

// enqueue encodes a patch list and queues it for sending. Runs under the
// tree lock, so it must not block: a slow client drops frames and is
// expected to resync.
func (b *Bridge) enqueue(patches []vdom.Patch) {
	frame := Frame{
		Seq:     b.seq.Add(1),
		Patches: make([]WirePatch, 0, len(patches)),
	}
	for _, p := range patches {
		frame.Patches = append(frame.Patches, encodePatch(p))
	}
	select {
	case b.sendCh <- frame:
	default:
		b.logger.Warn("patch frame dropped, client too slow", "seq", frame.Seq)
	}
}

// Run pumps frames out and events in until the context is cancelled, the
// connection fails or the tree is retired. The bridge detaches from the
// tree on the way out so a closed connection stops costing per-cycle
// encoding work.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Detach()
	go b.writeLoop(ctx)

	for {
		var ev wireEvent
		if err := b.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		b.tree.Dispatch(ev.Path, vdom.Event{
			Type:    ev.Type,
			Value:   ev.Value,
			Checked: ev.Checked,
		})
	}
}

func (b *Bridge) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-b.sendCh:
			b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := b.conn.WriteJSON(frame); err != nil {
				b.logger.Warn("patch frame write failed", "seq", frame.Seq, "error", err)
				return
			}
		}
	}
}

func encodePatch(p vdom.Patch) WirePatch {
	w := WirePatch{
		Op:      p.Op.String(),
		Path:    p.Path,
		Text:    p.Text,
		Removed: p.Removed,
		From:    p.From,
		To:      p.To,
	}
	if p.Node != nil {
		if html, err := render.ToString(p.Node); err == nil {
			w.HTML = html
		}
	}
	if len(p.Added) > 0 {
		w.Added = make(map[string]string, len(p.Added))
		for key, value := range p.Added {
			if vdom.KindOfProp(key, value) == vdom.PropHandler {
				continue
			}
			w.Added[key] = render.AttrString(key, value)
		}
	}
	return w
}
