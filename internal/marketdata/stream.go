package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamTrade is the wire format of a single trade message from the
// market data websocket.
type streamTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // milliseconds
}

// StreamSource consumes live trades over a websocket and enriches them
// into PriceTicks. Reconnects with capped backoff on any stream error.
type StreamSource struct {
	symbol   string
	url      string
	enricher *Enricher
	out      chan PriceTick
	logger   *zap.Logger
}

// NewStreamSource creates a websocket-backed source for a single symbol.
func NewStreamSource(symbol, url string, maWindow int, logger *zap.Logger) *StreamSource {
	return &StreamSource{
		symbol:   symbol,
		url:      url,
		enricher: NewEnricher(maWindow),
		out:      make(chan PriceTick, 256),
		logger:   logger,
	}
}

// Ticks returns the output channel.
func (s *StreamSource) Ticks() <-chan PriceTick {
	return s.out
}

// ResetSession clears the stream's indicator state at the session boundary.
func (s *StreamSource) ResetSession() {
	s.enricher.ResetSession()
}

// Run connects and consumes until the context is cancelled.
func (s *StreamSource) Run(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("stream source requires a websocket URL")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			close(s.out)
			return ctx.Err()
		}
		err := s.consume(ctx)
		if ctx.Err() != nil {
			close(s.out)
			return ctx.Err()
		}
		s.logger.Warn("Market data stream disconnected, retrying...",
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			close(s.out)
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (s *StreamSource) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.logger.Info("Connected market data stream",
		zap.String("symbol", s.symbol), zap.String("url", s.url))

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.Warn("Market data ping failed", zap.Error(err))
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(message)
	}
}

func (s *StreamSource) handleMessage(message []byte) {
	var trade streamTrade
	if err := json.Unmarshal(message, &trade); err != nil {
		s.logger.Debug("Skipping unparseable stream message", zap.Error(err))
		return
	}
	if trade.Symbol != "" && trade.Symbol != s.symbol {
		return
	}

	price, err1 := strconv.ParseFloat(trade.Price, 64)
	qty, err2 := strconv.ParseFloat(trade.Quantity, 64)
	if err1 != nil || err2 != nil || price <= 0 {
		return
	}

	tick, ok := s.enricher.Enrich(PriceTick{
		Timestamp: time.UnixMilli(trade.TradeTime),
		Price:     price,
		Volume:    qty,
	})
	if !ok {
		return // stale or duplicate timestamp
	}
	publish(s.out, tick)
}
