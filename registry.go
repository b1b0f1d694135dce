package mcpruntime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// registry holds the authoritative, process-wide set of active transports,
// keyed by ServerID, and publishes lifecycle events as they change. A nil value under a key means "reserved, still connecting"; it
// lets connect() release the write lock while spawning without letting a
// second concurrent connect for the same id race in underneath it.
type registry struct {
	mu          sync.RWMutex
	handles     map[ServerID]*transport
	bus         *eventBus
	logger      *slog.Logger
	maxLineSize int
	metrics     instruments
}

func newRegistry(bus *eventBus, logger *slog.Logger, maxLineSize int, metrics instruments) *registry {
	return &registry{
		handles:     make(map[ServerID]*transport),
		bus:         bus,
		logger:      logger,
		maxLineSize: maxLineSize,
		metrics:     metrics,
	}
}

// connect spawns a transport for id and inserts it. It publishes no
// lifecycle events: the handle isn't usable until the caller's initialize
// handshake succeeds, and markConnected is what announces that. It never
// holds the write lock across the spawn itself, only across the brief map
// mutations on either side of it.
func (r *registry) connect(id ServerID, spec LaunchSpec) (*transport, *Error) {
	if spec.Command == "" {
		return nil, configurationErr(string(id), "command must not be empty", nil)
	}

	r.mu.Lock()
	if _, exists := r.handles[id]; exists {
		r.mu.Unlock()
		return nil, configurationErr(string(id), "server_id already exists", nil)
	}
	r.handles[id] = nil // reserve
	r.mu.Unlock()

	tr, spawnErr := newTransport(id, spec, r.logger, r.maxLineSize)

	r.mu.Lock()
	if spawnErr != nil {
		delete(r.handles, id)
		r.mu.Unlock()
		return nil, spawnErr
	}
	tr.onTerminal = func(t *transport, unexpected bool) { r.handleTerminal(id, t, unexpected) }
	r.handles[id] = tr
	r.mu.Unlock()

	return tr, nil
}

// markConnected publishes server-connected and connection-changed for id.
// The caller must only invoke this once the initialize handshake over tr
// has actually succeeded; a connect attempt that never reaches a usable
// state (spawn failure, failed handshake) must never be announced as a
// connect, since callers rely on one server-connected per successful
// connect with no compensating server-disconnected otherwise.
func (r *registry) markConnected(id ServerID, tr *transport) {
	tr.markAnnounced()
	status, reason, _ := tr.snapshot()
	now := time.Now()
	r.bus.publish(ConnectionEvent{
		Topic: TopicServerConnected, ServerID: id, Status: status, Reason: reason,
		Timestamp: now, Command: tr.spec.Command, Args: tr.spec.Args,
	})
	r.bus.publish(ConnectionEvent{
		Topic: TopicConnectionChanged, ServerID: id, Status: status, Reason: reason,
		Timestamp: now, Command: tr.spec.Command, Args: tr.spec.Args,
	})
	r.metrics.recordConnected(context.Background())
}

// abandon removes a reserved or connected handle without emitting events,
// used by the façade to unwind a connect() whose initialize handshake
// failed.
func (r *registry) abandon(id ServerID) {
	r.mu.Lock()
	tr, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok && tr != nil {
		tr.close()
	}
}

// disconnect removes and closes the handle for id. It emits
// server-disconnected and connection-changed only if markConnected was
// ever called for this handle; a handle abandoned mid-handshake was never
// announced as connected, so tearing it down announces nothing either.
// Unknown id is a Configuration error; callers that tolerate "already gone"
// may swallow it.
func (r *registry) disconnect(id ServerID) *Error {
	r.mu.Lock()
	tr, ok := r.handles[id]
	if !ok || tr == nil {
		r.mu.Unlock()
		return configurationErr(string(id), "unknown server_id", nil)
	}
	delete(r.handles, id)
	r.mu.Unlock()

	tr.close()

	if !tr.wasAnnounced() {
		return nil
	}

	status, reason, _ := tr.snapshot()
	now := time.Now()
	r.bus.publish(ConnectionEvent{
		Topic: TopicServerDisconnected, ServerID: id, Status: status, Reason: reason,
		Timestamp: now, Command: tr.spec.Command, Args: tr.spec.Args,
	})
	r.bus.publish(ConnectionEvent{
		Topic: TopicConnectionChanged, ServerID: id, Status: status, Reason: reason, Timestamp: now,
	})
	r.metrics.recordDisconnected(context.Background())

	return nil
}

// get resolves id to its transport for the façade to route a request
// through. Unknown id is a Configuration error.
func (r *registry) get(id ServerID) (*transport, *Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tr, ok := r.handles[id]
	if !ok || tr == nil {
		return nil, configurationErr(string(id), "unknown server_id", nil)
	}
	return tr, nil
}

// list returns a snapshot of every held (non-reserved) handle. Order is
// unspecified.
func (r *registry) list() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(r.handles))
	for id, tr := range r.handles {
		if tr == nil {
			continue
		}
		status, reason, connectedAt := tr.snapshot()
		info := ConnectionInfo{
			ServerID: id,
			Command:  tr.spec.Command,
			Args:     tr.spec.Args,
			Status:   status,
			Reason:   reason,
		}
		if status == StatusConnected || status == StatusConnecting {
			t := connectedAt
			info.ConnectedAt = &t
		}
		out = append(out, info)
	}
	return out
}

// shutdown closes every held handle concurrently and drains the event bus.
// No child outlives a shut-down registry.
func (r *registry) shutdown(ctx context.Context) error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[ServerID]*transport)
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, tr := range handles {
		id, tr := id, tr
		if tr == nil {
			continue
		}
		g.Go(func() error {
			tr.close()
			if !tr.wasAnnounced() {
				return nil
			}
			status, reason, _ := tr.snapshot()
			now := time.Now()
			r.bus.publish(ConnectionEvent{
				Topic: TopicServerDisconnected, ServerID: id, Status: status, Reason: reason,
				Timestamp: now, Command: tr.spec.Command, Args: tr.spec.Args,
			})
			r.bus.publish(ConnectionEvent{
				Topic: TopicConnectionChanged, ServerID: id, Status: status, Reason: reason, Timestamp: now,
			})
			r.metrics.recordDisconnected(context.Background())
			return nil
		})
	}
	err := g.Wait()
	r.bus.shutdown()
	return err
}

// handleTerminal is the registry's half of the reader/registry handshake:
// the reader never mutates the registry directly, it calls back here, and
// handleTerminal only acts if this transport is still the one the
// registry is holding for id. A concurrent disconnect() may have already
// removed and closed it, in which case that path already emitted the
// lifecycle events and this call is a no-op.
func (r *registry) handleTerminal(id ServerID, tr *transport, unexpected bool) {
	r.mu.Lock()
	current, ok := r.handles[id]
	stillOwned := ok && current == tr
	if stillOwned {
		delete(r.handles, id)
	}
	r.mu.Unlock()

	if !stillOwned || !tr.wasAnnounced() {
		return
	}

	status, reason, _ := tr.snapshot()
	now := time.Now()
	r.bus.publish(ConnectionEvent{
		Topic: TopicServerDisconnected, ServerID: id, Status: status, Reason: reason,
		Timestamp: now, Command: tr.spec.Command, Args: tr.spec.Args,
	})
	r.bus.publish(ConnectionEvent{
		Topic: TopicConnectionChanged, ServerID: id, Status: status, Reason: reason, Timestamp: now,
	})
	r.metrics.recordDisconnected(context.Background())
	if unexpected {
		r.bus.publish(ConnectionEvent{
			Topic: TopicProcessError, ServerID: id, Status: status, Reason: reason, Timestamp: now,
		})
	}
}
