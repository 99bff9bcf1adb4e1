package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"newsgate/internal/event"
	logx "newsgate/pkg/logx"
)

func TestStaticDrainsOnce(t *testing.T) {
	t.Parallel()
	src := NewStatic("test", []event.Candidate{{ItemID: "a"}, {ItemID: "b"}})
	ctx := context.Background()

	items, err := src.Drain(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("first drain: %v items, err %v", len(items), err)
	}
	items, err = src.Drain(ctx)
	if err != nil || len(items) != 0 {
		t.Fatalf("second drain must be empty, got %d items", len(items))
	}
}

type errSource struct{}

func (errSource) Name() string { return "broken" }
func (errSource) Drain(context.Context) ([]event.Candidate, error) {
	return nil, errors.New("down")
}
func (errSource) Close() error { return nil }

func TestMergeSurvivesBrokenSource(t *testing.T) {
	t.Parallel()
	sources := []Source{
		NewStatic("a", []event.Candidate{{ItemID: "1"}}),
		errSource{},
		NewStatic("b", []event.Candidate{{ItemID: "2"}}),
	}
	items, errs := Merge(context.Background(), sources)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if items[0].ItemID != "1" || items[1].ItemID != "2" {
		t.Fatalf("ingestion order not preserved: %+v", items)
	}
}

func TestWSBuffersCandidates(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	payloads := []string{
		`{"item_id":"w1","ticker":"TOVX","title":"Headline one","source":"aggregator"}`,
		`{"item_id":"","title":"no id"}`, // incomplete, dropped
		`not json`,                       // malformed, dropped
		`{"item_id":"w2","url":"https://x.example.com/2","source":"other"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws := NewWS(WSConfig{Name: "test-feed", URL: url}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.Start(ctx)
	defer ws.Close()

	deadline := time.After(5 * time.Second)
	var got []event.Candidate
	for len(got) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out with %d candidates", len(got))
		case <-time.After(20 * time.Millisecond):
		}
		items, err := ws.Drain(ctx)
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		got = append(got, items...)
	}

	if got[0].ItemID != "w1" || got[1].ItemID != "w2" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
