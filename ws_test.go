package messenger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://chat.example.com":         "wss://chat.example.com/ws",
		"http://localhost:8080":            "ws://localhost:8080/ws",
		"https://chat.example.com/app?x=1": "wss://chat.example.com/ws",
		"ws://127.0.0.1:9000":              "ws://127.0.0.1:9000/ws",
	}
	for origin, want := range cases {
		got, err := WebSocketURL(origin)
		if err != nil {
			t.Fatalf("origin=%q err=%v", origin, err)
		}
		if got != want {
			t.Fatalf("origin=%q got=%q want=%q", origin, got, want)
		}
	}
	if _, err := WebSocketURL("ftp://example.com"); err == nil {
		t.Fatal("expected error for ftp origin")
	}
}

func TestWebSocketDialerRoundTrip(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			t.Errorf("path=%s", r.URL.Path)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	endpoint, err := WebSocketURL(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	d := &WebSocketDialer{PingInterval: 20 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, endpoint)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	frame, _ := AuthFrame("alice", "tok").Marshal()
	if err := conn.WriteMessage(frame); err != nil {
		t.Fatal(err)
	}
	got, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(frame) {
		t.Fatalf("echo=%s", got)
	}

	// The blocked read processes pongs, so the read deadline keeps moving
	// and the link survives several ping intervals of silence.
	result := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage()
		result <- err
	}()
	time.Sleep(100 * time.Millisecond)
	if err := conn.WriteMessage([]byte(`{"type":"typing"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("read after keepalive: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestWSConnCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, err := (&WebSocketDialer{PingInterval: -1}).Dial(context.Background(), endpoint)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := conn.WriteMessage([]byte("{}")); err != ErrConnClosed {
		t.Fatalf("write after close err=%v", err)
	}
	if _, err := conn.ReadMessage(); err != ErrConnClosed {
		t.Fatalf("read after close err=%v", err)
	}
}

func TestWebSocketDialerReportsHTTPStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	endpoint, _ := WebSocketURL(server.URL)
	_, err := (&WebSocketDialer{}).Dial(context.Background(), endpoint)
	if err == nil || !strings.Contains(err.Error(), "http 403") {
		t.Fatalf("err=%v", err)
	}
}
