// Package live runs the streaming trade loop: one session owns the socket,
// per-market traders own decision state, and a portfolio coordinator ties
// them to a shared risk latch.
package live

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/metrics"
)

const (
	defaultWSURL       = "wss://api.upbit.com/websocket/v1"
	defaultReadTimeout = 30 * time.Second

	reconnectInitial = 500 * time.Millisecond
	reconnectMax     = 8 * time.Second

	pingWriteWait = 5 * time.Second
)

// wsConn is the slice of *websocket.Conn the session uses; tests fake it.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SessionConfig names the endpoint, the markets to subscribe, and the read
// deadline that an unanswered keepalive is allowed to exceed.
type SessionConfig struct {
	URL         string
	Markets     []string
	ReadTimeout time.Duration
}

// Session maintains one persistent socket: connect, subscribe, ping from a
// ticker while pongs and data frames extend the read deadline, reconnect
// with capped jittered backoff on any read failure. It never owns decision
// state, so a reconnect never resets bars or positions.
type Session struct {
	cfg     SessionConfig
	log     zerolog.Logger
	connect func(ctx context.Context) (wsConn, error)
	sleep   func(ctx context.Context, d time.Duration)
}

// NewSession builds a session over the real websocket dialer.
func NewSession(cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.URL == "" {
		cfg.URL = defaultWSURL
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	s := &Session{cfg: cfg, log: log, sleep: sleepCtx}
	s.connect = func(ctx context.Context) (wsConn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return s
}

// tradeMessage is the exchange's trade frame, UTF-8 or binary-UTF-8 JSON.
type tradeMessage struct {
	Type           string  `json:"type"`
	Code           string  `json:"code"`
	TradePrice     float64 `json:"trade_price"`
	TradeVolume    float64 `json:"trade_volume"`
	TradeTimestamp int64   `json:"trade_timestamp"`
}

// decodeTick parses one frame. Anything that is not a well-formed trade for
// a known field set is dropped without touching state.
func decodeTick(data []byte) (market.Tick, bool) {
	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return market.Tick{}, false
	}
	if msg.Code == "" || msg.TradePrice <= 0 {
		return market.Tick{}, false
	}
	return market.Tick{
		Market: msg.Code,
		Price:  msg.TradePrice,
		Volume: msg.TradeVolume,
		Ts:     time.UnixMilli(msg.TradeTimestamp).UTC(),
	}, true
}

// subscribe sends the single subscription frame naming every tracked market.
func (s *Session) subscribe(conn wsConn) error {
	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{
			"type":           "trade",
			"codes":          s.cfg.Markets,
			"isOnlyRealtime": true,
		},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Run drives connect/subscribe/read until the context is cancelled. Every
// decoded tick is handed to the handler synchronously, preserving arrival
// order. Run only returns with the context's error; all socket failures are
// absorbed by reconnecting.
func (s *Session) Run(ctx context.Context, handler func(market.Tick)) error {
	backoff := reconnectInitial
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := s.connect(ctx)
		if err != nil {
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("ws.connect_failed")
			metrics.ReconnectsTotal.Inc()
			s.sleep(ctx, jittered(backoff))
			backoff = nextBackoff(backoff)
			continue
		}
		if err := s.subscribe(conn); err != nil {
			conn.Close()
			s.log.Warn().Err(err).Msg("ws.subscribe_failed")
			metrics.ReconnectsTotal.Inc()
			s.sleep(ctx, jittered(backoff))
			backoff = nextBackoff(backoff)
			continue
		}
		s.log.Info().Strs("markets", s.cfg.Markets).Msg("ws.subscribed")
		backoff = reconnectInitial

		err = s.readLoop(ctx, conn, handler)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Msg("ws.disconnected")
		metrics.ReconnectsTotal.Inc()
		s.sleep(ctx, jittered(backoff))
		backoff = nextBackoff(backoff)
	}
}

// readLoop owns the connection until the first read error. A websocket read
// permanently fails its connection, so the error is returned for Run to
// reconnect rather than ever reading again. Liveness comes from a ping
// ticker; pongs and data frames push the read deadline forward, and a peer
// that answers neither times the read out.
func (s *Session) readLoop(ctx context.Context, conn wsConn, handler func(market.Tick)) error {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.cfg.ReadTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait)); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		tick, ok := decodeTick(data)
		if !ok {
			s.log.Debug().Int("bytes", len(data)).Msg("ws.dropped_frame")
			continue
		}
		metrics.TicksTotal.WithLabelValues(tick.Market).Inc()
		handler(tick)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		d = reconnectMax
	}
	return d
}

func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (1 + 0.2*rand.Float64()))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
