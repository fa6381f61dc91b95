// Package relay forwards messages between connected WebSocket clients.
//
// The Hub's in-memory connection table decides who is reachable. Presence
// entries in the key-value store are advisory: they are written on connect
// and removed on a clean disconnect, but a crash leaves them behind, so a
// presence entry without a live connection is simply "not reachable".
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/metrics"
	"github.com/sakif/intake-tracker/internal/model"
	"github.com/sakif/intake-tracker/internal/repository"
)

// storeTimeout bounds presence reads and writes done outside a request.
const storeTimeout = 5 * time.Second

// Hub owns the live connections. Construct one per server with NewHub.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	store   repository.KVStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewHub(store repository.KVStore, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		conns:   make(map[string]*Conn),
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Serve runs a connection for name until it closes. It blocks; call it from
// the upgrade handler.
func (h *Hub) Serve(name string, ws *websocket.Conn) {
	c := newConn(h, name, ws)
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// register records presence for c, then makes it the live connection for
// its name, replacing (and closing) any previous one. Once reachable reports
// c, its presence entry is already stored.
func (h *Hub) register(c *Conn) {
	p := model.Presence{Name: c.name, ConnID: c.id, ConnectedAt: c.connectedAt}
	blob, err := json.Marshal(p)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err = h.store.Put(ctx, presenceKey(c.name), string(blob))
		cancel()
	}
	if err != nil {
		h.logger.Warn("failed to record presence", slog.String("name", c.name), slog.String("error", err.Error()))
	}

	h.mu.Lock()
	old := h.conns[c.name]
	h.conns[c.name] = c
	n := len(h.conns)
	h.mu.Unlock()

	if old != nil {
		old.close(websocket.ClosePolicyViolation, "replaced by a newer connection")
	}
	h.metrics.RelayConnections.Set(float64(n))

	h.logger.Info("relay client connected",
		slog.String("name", c.name),
		slog.String("conn_id", c.id),
		slog.Bool("replaced", old != nil),
	)
}

// unregister removes c if it is still the live connection for its name and
// clears the presence entry if that entry still describes c.
func (h *Hub) unregister(c *Conn) {
	c.close(websocket.CloseNormalClosure, "")

	h.mu.Lock()
	current := h.conns[c.name] == c
	if current {
		delete(h.conns, c.name)
	}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.RelayConnections.Set(float64(n))
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if p, err := h.readPresence(ctx, c.name); err == nil && p.ConnID == c.id {
		if err := h.store.Delete(ctx, presenceKey(c.name)); err != nil {
			h.logger.Warn("failed to clear presence", slog.String("name", c.name), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("relay client disconnected", slog.String("name", c.name), slog.String("conn_id", c.id))
}

// route delivers one inbound frame from sender. Every failure is reported
// back to the sender as an error frame; none of them affect other clients.
func (h *Hub) route(sender *Conn, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.To == "" {
		h.metrics.RecordRelay(metrics.RelayInvalidFrame)
		sender.enqueue(errorFrame(`expected {"to": "<name>", "body": ...}`))
		return
	}

	h.mu.RLock()
	target := h.conns[in.To]
	h.mu.RUnlock()

	if target == nil {
		h.metrics.RecordRelay(metrics.RelayUnreachable)
		sender.enqueue(errorFrame(in.To + " is not reachable"))
		return
	}

	out, err := json.Marshal(outbound{
		Type:   frameMessage,
		ID:     xid.New().String(),
		From:   sender.name,
		Body:   in.Body,
		SentAt: h.now().UTC(),
	})
	if err != nil {
		sender.enqueue(errorFrame("could not encode message"))
		return
	}
	if !target.enqueue(out) {
		h.metrics.RecordRelay(metrics.RelayUnreachable)
		sender.enqueue(errorFrame(in.To + " is not reachable"))
		return
	}
	h.metrics.RecordRelay(metrics.RelayDelivered)
}

// reachable reports whether name has a live connection on this hub.
func (h *Hub) reachable(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[name]
	return ok
}

// Presence lists the stored presence entries, each annotated with whether
// that exact connection is live here. Undecodable entries are skipped.
func (h *Hub) Presence(ctx context.Context) ([]model.Presence, error) {
	keys, err := h.store.List(ctx, repository.PresenceKeyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]model.Presence, 0, len(keys))
	for _, k := range keys {
		p, err := h.readPresence(ctx, k[len(repository.PresenceKeyPrefix):])
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if errors.Is(err, apperror.ErrUnavailable) {
			return nil, err
		}
		if err != nil {
			h.logger.Warn("skipping undecodable presence entry", slog.String("key", k), slog.String("error", err.Error()))
			continue
		}

		h.mu.RLock()
		live := h.conns[p.Name]
		h.mu.RUnlock()
		p.Reachable = live != nil && live.id == p.ConnID

		out = append(out, p)
	}
	return out, nil
}

func (h *Hub) readPresence(ctx context.Context, name string) (model.Presence, error) {
	blob, err := h.store.Get(ctx, presenceKey(name))
	if err != nil {
		return model.Presence{}, err
	}
	var p model.Presence
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return model.Presence{}, err
	}
	return p, nil
}

// Close disconnects every client. Each connection's own unregister clears
// its presence entry.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func presenceKey(name string) string {
	return repository.PresenceKeyPrefix + name
}
