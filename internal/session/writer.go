package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
)

const (
	writeDeadline   = 5 * time.Second
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	idleTimeout     = 5 * time.Minute
	sendQueueLength = 16
)

// connWriter owns all writes to one WebSocket connection. Frames are
// handed over through a bounded queue; a dedicated goroutine drains it
// and handles keepalive pings and idle detection.
type connWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	doneCh   chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.Mutex
	lastActivity time.Time
}

func newConnWriter(conn *websocket.Conn, clock clockwork.Clock) *connWriter {
	cw := &connWriter{
		conn:         conn,
		clock:        clock,
		sendCh:       make(chan []byte, sendQueueLength),
		doneCh:       make(chan struct{}),
		lastActivity: clock.Now(),
	}

	cw.touchReadDeadline()
	conn.SetPongHandler(func(string) error {
		cw.touchReadDeadline()
		cw.mu.Lock()
		cw.lastActivity = cw.clock.Now()
		cw.mu.Unlock()
		return nil
	})

	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue hands a frame to the writer without blocking.
// Returns false if the queue is full or the writer has stopped.
func (cw *connWriter) enqueue(frame []byte) bool {
	select {
	case <-cw.doneCh:
		return false
	default:
	}

	select {
	case cw.sendCh <- frame:
		return true
	default:
		return false
	}
}

// stopped is closed once the writer goroutine has exited.
func (cw *connWriter) stopped() <-chan struct{} {
	return cw.doneCh
}

func (cw *connWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer cw.signalDone()

	for {
		select {
		case frame, ok := <-cw.sendCh:
			if !ok {
				return
			}
			start := cw.clock.Now()
			cw.touchWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			metrics.WebSocketSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if cw.idle() {
				metrics.WebSocketIdleDisconnects.Inc()
				return
			}
			cw.touchWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-cw.doneCh:
			return
		}
	}
}

// stop terminates the writer, optionally sending a close frame with the
// given reason first. Safe to call more than once and from any goroutine.
func (cw *connWriter) stop(reason string) {
	cw.stopOnce.Do(func() {
		cw.signalDone()
		// The run goroutine must exit before the close frame is written,
		// otherwise two goroutines write to the connection at once.
		cw.wg.Wait()

		if reason != "" {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			cw.touchWriteDeadline()
			_ = cw.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		}
		_ = cw.conn.Close()
	})
}

func (cw *connWriter) signalDone() {
	cw.doneOnce.Do(func() { close(cw.doneCh) })
}

func (cw *connWriter) touchWriteDeadline() {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *connWriter) touchReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}

func (cw *connWriter) idle() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.clock.Since(cw.lastActivity) >= idleTimeout
}
