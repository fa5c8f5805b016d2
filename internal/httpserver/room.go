package httpserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

var roomUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientCommand is a JSON text frame from the client. Binary frames carry
// 16kHz mono PCM mic audio and have no envelope.
type clientCommand struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

// serverEvent is a JSON text frame to the client. Synthesized speech goes
// out as binary frames of 48kHz linear16 PCM.
type serverEvent struct {
	Type       string          `json:"type"`
	State      string          `json:"state,omitempty"`
	Message    *agent.Message  `json:"message,omitempty"`
	Log        *agent.LogEntry `json:"log,omitempty"`
	Transcript *string         `json:"transcript,omitempty"`
	Activity   []string        `json:"activity,omitempty"`
	Notice     string          `json:"notice,omitempty"`
}

// room is one WebSocket connection with its own controller. Writes are
// serialized because gorilla permits a single concurrent writer.
type room struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	ctrl    *agent.Controller
}

// handleRoom upgrades the connection and runs the session until the client
// disconnects. Each connection gets an isolated controller and history.
func (s *Server) handleRoom(c echo.Context) error {
	conn, err := roomUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	r := &room{id: uuid.NewString(), conn: conn}
	ev := agent.Events{
		OnState: func(st agent.State) {
			r.send(serverEvent{Type: "state", State: string(st)})
		},
		OnMessage: func(m agent.Message) {
			r.send(serverEvent{Type: "message", Message: &m})
		},
		OnLog: func(e agent.LogEntry) {
			r.send(serverEvent{Type: "log", Log: &e})
		},
		OnTranscript: func(text string) {
			r.send(serverEvent{Type: "transcript", Transcript: &text})
		},
		OnActivity: func(items []string) {
			r.send(serverEvent{Type: "activity", Activity: items})
		},
		OnNotice: func(text string) {
			r.send(serverEvent{Type: "notice", Notice: text})
		},
	}

	var speaker agent.Speaker
	if s.deps.NewSpeaker != nil {
		speaker = s.deps.NewSpeaker(r.sendPCM)
	}
	r.ctrl = agent.NewController(s.deps.Responder, s.deps.Recognizer, speaker, ev)

	log.Printf("room %s connected", r.id)
	r.readLoop()

	history := r.ctrl.History()
	r.ctrl.Close()
	_ = conn.Close()
	log.Printf("room %s disconnected (%d messages)", r.id, len(history))

	if s.deps.Archive != nil && len(history) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.deps.Archive.SaveConversation(ctx, r.id, history); err != nil {
				log.Printf("room %s archive failed: %v", r.id, err)
			}
		}()
	}
	return nil
}

func (r *room) readLoop() {
	for {
		mt, data, err := r.conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			r.ctrl.FeedAudio(data)
		case websocket.TextMessage:
			r.dispatch(data)
		}
	}
}

func (r *room) dispatch(data []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Printf("room %s: bad command: %v", r.id, err)
		return
	}
	switch cmd.Type {
	case "submit":
		r.ctrl.Submit(cmd.Text)
	case "mode":
		m, ok := parseMode(cmd.Mode)
		if !ok {
			r.send(serverEvent{Type: "notice", Notice: "Unknown agent mode: " + cmd.Mode})
			return
		}
		r.ctrl.SetMode(m)
	case "voice":
		r.ctrl.SetVoiceEnabled(cmd.Enabled)
	case "listen_start":
		r.ctrl.StartListening()
	case "listen_stop":
		r.ctrl.StopListening()
	default:
		log.Printf("room %s: unknown command type %q", r.id, cmd.Type)
	}
}

func parseMode(s string) (agent.Mode, bool) {
	switch m := agent.Mode(s); m {
	case agent.ModeAutonomous, agent.ModeAssisted, agent.ModeManual, agent.ModeVoiceOnly:
		return m, true
	}
	return "", false
}

func (r *room) send(ev serverEvent) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteJSON(ev); err != nil {
		log.Printf("room %s: write failed: %v", r.id, err)
	}
}

func (r *room) sendPCM(pcm []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.BinaryMessage, pcm)
}
