// Package transcript provides speech-to-text capture sessions for the agent
// controller: a real adapter over AssemblyAI's streaming API and a null
// adapter for headless environments.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

// SILENCE_THRESHOLD is the base inactivity window required before a capture
// session is considered complete. Kept conservative to avoid cutting the
// user mid-sentence.
const SILENCE_THRESHOLD = 700 * time.Millisecond

// CONTINUATION_EXTENSION is added to the silence threshold when the last
// word suggests the user is likely to continue (e.g., "and", "or", "if").
const CONTINUATION_EXTENSION = 1200 * time.Millisecond

// STABILIZATION_GRACE waits a little after crossing the silence threshold to
// absorb late transcript updates from the ASR before finalizing.
const STABILIZATION_GRACE = 250 * time.Millisecond

// AssemblyAIRecognizer opens streaming transcription sessions against
// AssemblyAI. Each Start dials a fresh WebSocket; the session ends itself
// after sustained silence, on explicit Stop, or on a connection error.
type AssemblyAIRecognizer struct {
	apiKey     string
	sampleRate int
	wsBase     string
}

func NewAssemblyAIRecognizer(apiKey string) *AssemblyAIRecognizer {
	return &AssemblyAIRecognizer{
		apiKey:     apiKey,
		sampleRate: 16000,
		wsBase:     "wss://streaming.assemblyai.com/v3/ws",
	}
}

// Start implements agent.Recognizer. A missing API key means the capability
// is absent; dial failures are reported as plain errors.
func (r *AssemblyAIRecognizer) Start(ctx context.Context) (agent.Capture, error) {
	if r.apiKey == "" {
		return nil, agent.ErrUnavailable
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprintf("%d", r.sampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("%s?%s", r.wsBase, params.Encode())

	headers := map[string][]string{"Authorization": {r.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("AssemblyAI connection failed with status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s := &assemblySession{
		conn:    conn,
		updates: make(chan string, 100),
		endCh:   make(chan agent.CaptureEnd, 1),
		audio:   make(chan []byte, 1000),
		stopCh:  make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()
	return s, nil
}

// assemblySession is one capture session. It accumulates the running
// transcript from Turn messages and finishes after a dynamic silence window
// with the accumulated text as the finalized transcript.
type assemblySession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	updates chan string
	endCh   chan agent.CaptureEnd
	audio   chan []byte

	mu           sync.Mutex
	latest       string
	lastUpdate   time.Time
	silenceTimer *time.Timer
	done         bool
	stopCh       chan struct{}
}

func (s *assemblySession) Updates() <-chan string       { return s.updates }
func (s *assemblySession) End() <-chan agent.CaptureEnd { return s.endCh }

// Stop requests a normal end. The accumulated transcript, if any, is
// delivered through the end event.
func (s *assemblySession) Stop() {
	s.mu.Lock()
	latest := s.latest
	s.mu.Unlock()
	s.finish(agent.CaptureEnd{Transcript: latest})
}

// SendPCM queues 16kHz little-endian mono PCM for transcription. Full
// buffers drop packets rather than block the caller.
func (s *assemblySession) SendPCM(pcm []byte) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("capture session ended")
	default:
	}
	select {
	case s.audio <- pcm:
	default:
		log.Println("Audio buffer full, dropping packet")
	}
	return nil
}

// finish delivers the single end event and tears the session down. Safe to
// call from any goroutine; only the first call wins.
func (s *assemblySession) finish(end agent.CaptureEnd) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.writeMu.Lock()
	terminateMsg := map[string]string{"type": "Terminate"}
	_ = s.conn.WriteJSON(terminateMsg)
	s.writeMu.Unlock()
	_ = s.conn.Close()
	s.endCh <- end
}

func (s *assemblySession) writeLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("Error sending audio data: %v", err)
				return
			}
		}
	}
}

func (s *assemblySession) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readLoop: %v", r)
		}
	}()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				// normal shutdown
			default:
				s.finish(agent.CaptureEnd{Err: fmt.Errorf("read: %w", err)})
			}
			return
		}
		s.processMessage(message)
	}
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *assemblySession) processMessage(message []byte) {
	var baseMsg map[string]interface{}
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	msgType, ok := baseMsg["type"].(string)
	if !ok {
		return
	}
	switch msgType {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		log.Printf("AssemblyAI session began: ID=%s", msg.ID)
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case s.updates <- msg.Transcript:
		default:
		}
		s.mu.Lock()
		s.latest = msg.Transcript
		s.lastUpdate = time.Now()
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.mu.Unlock()
	case "Termination":
		s.mu.Lock()
		latest := s.latest
		s.mu.Unlock()
		s.finish(agent.CaptureEnd{Transcript: latest})
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		s.finish(agent.CaptureEnd{Err: fmt.Errorf("assemblyai: %s", msg.Error)})
	}
}

// finalizeDueToSilence fires after the silence threshold. It extends the
// window when the last word implies continuation, waits a short
// stabilization grace for late ASR updates, and then ends the session with
// the accumulated transcript.
func (s *assemblySession) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.mu.Lock()
	threshold := SILENCE_THRESHOLD
	if isContinuationLikely(s.latest) {
		threshold += CONTINUATION_EXTENSION
	}
	since := time.Since(s.lastUpdate)
	if since < threshold {
		wait := threshold - since
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer != nil {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.mu.Unlock()
		return
	}
	lastUpdateAt := s.lastUpdate
	s.mu.Unlock()

	// grace period to catch late transcript updates
	time.Sleep(STABILIZATION_GRACE)

	s.mu.Lock()
	if s.lastUpdate.After(lastUpdateAt) {
		if s.silenceTimer != nil {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.mu.Unlock()
		return
	}
	latest := s.latest
	s.mu.Unlock()

	s.finish(agent.CaptureEnd{Transcript: latest})
}

// isContinuationLikely returns true if the last meaningful word indicates
// the speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// prepositions that are awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
