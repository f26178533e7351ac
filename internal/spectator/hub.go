// Package spectator streams per-ply match events to websocket subscribers.
package spectator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessbench-go/internal/match"
)

const (
	EventPly      = "ply"
	EventFinished = "finished"
)

// Event is one message on the feed.
type Event struct {
	Type       string   `json:"type"`
	MatchID    string   `json:"match_id"`
	Ply        int      `json:"ply,omitempty"`
	MoveNumber int      `json:"move_number,omitempty"`
	Role       string   `json:"role,omitempty"`
	SAN        string   `json:"san,omitempty"`
	Eval       *float64 `json:"eval,omitempty"`
	FEN        string   `json:"fen,omitempty"`
	Result     string   `json:"result,omitempty"`
}

// Hub fans events out to connected subscribers. A subscriber whose buffer is
// full loses the event rather than stalling the match.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int

	buffer       int
	writeTimeout time.Duration
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:       logger,
		subs:         make(map[int]chan Event),
		buffer:       64,
		writeTimeout: 5 * time.Second,
	}
}

// Subscribe registers a buffered channel. The returned func unsubscribes.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("spectator_event_dropped", zap.Int("subscriber", id), zap.String("match_id", ev.MatchID))
		}
	}
}

// Observer publishes every applied ply of matchID.
func (h *Hub) Observer(matchID string) match.Observer {
	return match.ObserverFunc(func(_ context.Context, _ *match.Session, rec match.MoveRecord) {
		eval := rec.Eval
		h.Publish(Event{
			Type:       EventPly,
			MatchID:    matchID,
			Ply:        rec.Ply,
			MoveNumber: rec.MoveNumber,
			Role:       string(rec.Role),
			SAN:        rec.SAN,
			Eval:       &eval,
			FEN:        rec.FEN,
		})
	})
}

// Finished publishes the end-of-match event.
func (h *Hub) Finished(matchID, result string) {
	h.Publish(Event{Type: EventFinished, MatchID: matchID, Result: result})
}

// ServeHTTP upgrades the request and streams events until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("spectator_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	// 구독자는 읽기만 한다: CloseRead가 제어 프레임을 처리한다
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("spectator_connected", zap.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				h.logger.Debug("spectator_write_failed", zap.Error(err))
				return
			}
		}
	}
}
