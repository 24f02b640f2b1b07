package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

type subscriber struct {
	ch      chan []byte
	filter  map[string]struct{}
	account string
}

func (s *subscriber) wants(evt *types.Event) bool {
	if len(s.filter) > 0 {
		if _, ok := s.filter[evt.Type]; !ok {
			return false
		}
	}
	return s.account == "" || evt.Attr("account") == s.account
}

// Hub fans ledger events out to websocket subscribers. Slow subscribers lose
// events instead of blocking the ledger.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	logger  *slog.Logger
	dropped atomic.Uint64
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode event", slog.String("type", payload.Type), slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(payload) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. types filters by event type and account
// by the account attribute; empty values match everything.
func (h *Hub) Subscribe(eventTypes []string, account string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer), account: account}
	if len(eventTypes) > 0 {
		sub.filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams matching events. Query
// parameters: type (comma separated) and account.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var eventTypes []string
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				eventTypes = append(eventTypes, t)
			}
		}
	}
	account := strings.TrimSpace(r.URL.Query().Get("account"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := h.Subscribe(eventTypes, account)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
