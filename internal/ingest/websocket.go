package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"newsgate/internal/event"
	logx "newsgate/pkg/logx"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReconnectBase    = time.Second
	wsReconnectMax     = time.Minute
	// wsBufferCap bounds the candidates held between drains. When the
	// pipeline stalls, the oldest items are dropped first; ingestion is
	// at-least-once only while the process keeps up.
	wsBufferCap = 4096
)

// WSConfig configures one websocket feed of candidate events.
type WSConfig struct {
	Name string
	URL  string
}

// WS consumes a firehose of JSON-encoded candidates over a websocket and
// buffers them until the next cycle drains. The read loop reconnects with
// capped exponential backoff for the life of the supplied context.
type WS struct {
	cfg WSConfig
	log logx.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	buf []event.Candidate
}

func NewWS(cfg WSConfig, log logx.Logger) *WS {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &WS{cfg: cfg, log: log.With(logx.String("source", cfg.Name))}
}

func (w *WS) Name() string { return w.cfg.Name }

// Start launches the read loop. Idempotent per instance lifetime.
func (w *WS) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.readLoop(rctx)
	}()
}

func (w *WS) Drain(context.Context) ([]event.Candidate, error) {
	w.mu.Lock()
	out := w.buf
	w.buf = nil
	w.mu.Unlock()
	return out, nil
}

func (w *WS) Close() error {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
	}
	return nil
}

func (w *WS) readLoop(ctx context.Context) {
	backoff := wsReconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := w.dial(ctx)
		if err != nil {
			w.log.Warn("websocket dial failed", logx.Err(err), logx.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < wsReconnectMax {
				backoff *= 2
			}
			continue
		}
		backoff = wsReconnectBase
		w.log.Info("websocket connected", logx.String("url", w.cfg.URL))

		w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		w.log.Warn("websocket disconnected; reconnecting")
	}
}

func (w *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	return conn, err
}

func (w *WS) consume(ctx context.Context, conn *websocket.Conn) {
	// Unblock the blocking ReadMessage when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var c event.Candidate
		if err := json.Unmarshal(data, &c); err != nil {
			w.log.Debug("dropping malformed candidate", logx.Err(err))
			continue
		}
		if c.ItemID == "" || (c.Title == "" && c.URL == "") {
			w.log.Debug("dropping incomplete candidate", logx.String("item_id", c.ItemID))
			continue
		}
		w.push(c)
	}
}

func (w *WS) push(c event.Candidate) {
	w.mu.Lock()
	if len(w.buf) >= wsBufferCap {
		w.buf = w.buf[1:]
	}
	w.buf = append(w.buf, c)
	w.mu.Unlock()
}
