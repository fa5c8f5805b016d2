package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

var upgrader = websocket.Upgrader{}

// newWSServer runs handler on each incoming WebSocket connection and returns
// a recognizer pointed at it.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) (*AssemblyAIRecognizer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	rec := NewAssemblyAIRecognizer("test-key")
	rec.wsBase = "ws" + strings.TrimPrefix(srv.URL, "http")
	return rec, srv
}

func TestStartWithoutAPIKey(t *testing.T) {
	rec := NewAssemblyAIRecognizer("")
	_, err := rec.Start(context.Background())
	if err != agent.ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSilenceFinalizesSession(t *testing.T) {
	rec, _ := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]interface{}{"type": "Begin", "id": "sess-1"})
		_ = conn.WriteJSON(map[string]interface{}{"type": "Turn", "transcript": "check the"})
		_ = conn.WriteJSON(map[string]interface{}{"type": "Turn", "transcript": "check the balance"})
		// keep the connection open; the session should end itself
		time.Sleep(5 * time.Second)
		_ = conn.Close()
	})

	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var got []string
	deadline := time.After(4 * time.Second)
	for {
		select {
		case u := <-cap.Updates():
			got = append(got, u)
		case end := <-cap.End():
			if end.Err != nil {
				t.Fatalf("unexpected end error: %v", end.Err)
			}
			if end.Transcript != "check the balance" {
				t.Fatalf("transcript = %q, want %q", end.Transcript, "check the balance")
			}
			if len(got) == 0 {
				t.Fatal("no interim updates received")
			}
			return
		case <-deadline:
			t.Fatal("session did not finalize after silence")
		}
	}
}

func TestStopDeliversAccumulatedTranscript(t *testing.T) {
	rec, _ := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]interface{}{"type": "Turn", "transcript": "deploy the report"})
		time.Sleep(5 * time.Second)
		_ = conn.Close()
	})

	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-cap.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript update")
	}
	cap.Stop()

	select {
	case end := <-cap.End():
		if end.Err != nil {
			t.Fatalf("unexpected end error: %v", end.Err)
		}
		if end.Transcript != "deploy the report" {
			t.Fatalf("transcript = %q", end.Transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no end event after Stop")
	}
}

func TestServerErrorEndsSession(t *testing.T) {
	rec, _ := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]interface{}{"type": "Error", "error": "rate limit"})
		time.Sleep(time.Second)
		_ = conn.Close()
	})

	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case end := <-cap.End():
		if end.Err == nil {
			t.Fatal("expected end error")
		}
		if !strings.Contains(end.Err.Error(), "rate limit") {
			t.Fatalf("error = %v", end.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no end event after server error")
	}
}

func TestAudioForwarded(t *testing.T) {
	received := make(chan []byte, 1)
	rec, _ := newWSServer(t, func(conn *websocket.Conn) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				select {
				case received <- data:
				default:
				}
			}
		}
	})

	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cap.Stop()

	sess := cap.(*assemblySession)
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := sess.SendPCM(pcm); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-received:
		if len(data) != len(pcm) {
			t.Fatalf("got %d bytes, want %d", len(data), len(pcm))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio never reached the server")
	}
}

func TestContinuationWords(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"show me the report and", true},
		{"what about", true},
		{"I was thinking, um", true},
		{"check the balance", false},
		{"", false},
		{"   ", false},
		{"And", true},
	}
	for _, c := range cases {
		if got := isContinuationLikely(c.text); got != c.want {
			t.Errorf("isContinuationLikely(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestNullRecognizerUnavailable(t *testing.T) {
	_, err := NullRecognizer{}.Start(context.Background())
	if err != agent.ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
