package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventMessageAdded is the event name carried by outbound frames.
const EventMessageAdded = "message_added"

// Frame is the outbound wire envelope for subscription events.
type Frame struct {
	Event   string         `json:"event"`
	Message domain.Message `json:"message"`
}

// Session binds one WebSocket connection to one bus subscription.
// A session is single-use: once closed, a new connection needs a new one.
type Session struct {
	id     uuid.UUID
	bus    domain.Bus
	conn   *websocket.Conn
	clock  clockwork.Clock
	writer *connWriter
	sub    domain.Subscription
	seen   *recentIDs

	state     atomic.Int32
	drainOnce sync.Once
}

// New creates a session in the Connecting state. The connection must
// already be upgraded; the bus subscription is taken in Run.
func New(bus domain.Bus, conn *websocket.Conn, clock clockwork.Clock) *Session {
	return &Session{
		id:    uuid.New(),
		bus:   bus,
		conn:  conn,
		clock: clock,
		seen:  newRecentIDs(128),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Run subscribes to the message channel and pumps deliveries to the
// connection until the client disconnects, the sink fails, or ctx is
// cancelled. It always leaves the session Closed with the subscription
// released.
func (s *Session) Run(ctx context.Context) error {
	log := slog.With("session_id", s.id.String())

	sub, err := s.bus.Subscribe(ctx, domain.ChannelMessages)
	if err != nil {
		s.state.Store(int32(StateClosed))
		_ = s.conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.sub = sub
	s.writer = newConnWriter(s.conn, s.clock)
	s.state.Store(int32(StateActive))

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	log.Debug("Session active")

	// Read pump: the client sends nothing meaningful, but reading is how
	// disconnects and pong frames surface.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				s.drain(log, "subscription closed")
				return nil
			}
			if err := s.deliver(msg); err != nil {
				s.drain(log, "delivery failed")
				return nil
			}
		case <-readErr:
			s.drain(log, "client disconnected")
			return nil
		case <-s.writer.stopped():
			s.drain(log, "write failure")
			return nil
		case <-ctx.Done():
			s.drain(log, "server shutting down")
			return nil
		}
	}
}

// deliver serializes one message into a frame and hands it to the writer.
// Messages already delivered are skipped by ID, which makes transport
// retries safe for the client.
func (s *Session) deliver(msg domain.Message) error {
	if s.seen.remember(msg.ID) {
		metrics.DuplicateDeliveriesSuppressed.Inc()
		return nil
	}

	frame, err := json.Marshal(Frame{Event: EventMessageAdded, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if !s.writer.enqueue(frame) {
		return fmt.Errorf("writer rejected frame")
	}
	return nil
}

// drain runs the Active -> Draining -> Closed transition exactly once:
// unsubscribe from the bus, stop the writer, release the connection.
func (s *Session) drain(log *slog.Logger, reason string) {
	s.drainOnce.Do(func() {
		s.state.Store(int32(StateDraining))
		s.sub.Close()
		s.writer.stop(reason)
		s.state.Store(int32(StateClosed))
		metrics.SessionsClosedTotal.WithLabelValues(reason).Inc()
		log.Debug("Session closed", "reason", reason)
	})
}

// recentIDs is a fixed-size ring of delivered message IDs.
type recentIDs struct {
	ids   []string
	index map[string]struct{}
	next  int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{
		ids:   make([]string, size),
		index: make(map[string]struct{}, size),
	}
}

// remember records id and reports whether it was already present.
func (r *recentIDs) remember(id string) bool {
	if _, ok := r.index[id]; ok {
		return true
	}
	if old := r.ids[r.next]; old != "" {
		delete(r.index, old)
	}
	r.ids[r.next] = id
	r.index[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
	return false
}
