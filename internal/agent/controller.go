package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FallbackReply is the locally synthesized assistant message used when both
// the primary responder call and the reduced-context retry fail.
const FallbackReply = "I've analyzed your request. Based on current financial data, key insights include stable cash flow position, optimized expense ratios, and positive growth trajectory."

// speakLimit caps how much of a reply is handed to the speaker, in runes.
const speakLimit = 500

// contextWindow bounds how many conversation messages accompany a request.
const contextWindow = 10

// activityCap bounds the autonomous background activity list.
const activityCap = 10

// autonomousTasks is the fixed label cycle for the background activity
// ticker. Cosmetic only.
var autonomousTasks = []string{
	"Monitoring real-time cash flow",
	"Analyzing expense patterns",
	"Checking bank reconciliations",
	"Scanning for anomalies",
	"Updating forecasts",
	"Reviewing approval queues",
	"Generating insights",
	"Optimizing budget allocations",
	"Tracking receivables",
	"Evaluating risk levels",
}

// Controller mediates between speech/text input, the remote responder and
// spoken/textual output while maintaining the interaction state machine.
// It is the single owner of the conversation history and the execution log.
type Controller struct {
	responder  Responder
	recognizer Recognizer
	speaker    Speaker
	ev         Events

	mu           sync.Mutex
	state        State
	mode         Mode
	voiceEnabled bool
	history      []Message
	execLog      []LogEntry
	activity     []string
	capture      Capture
	captureStop  context.CancelFunc
	autoStop     chan struct{}

	// test seams
	now          func() time.Time
	submitDelay  time.Duration
	tickInterval time.Duration
}

// NewController constructs a Controller in manual mode, idle, with voice
// output enabled. recognizer and speaker may be nil when the respective
// capability is absent.
func NewController(responder Responder, recognizer Recognizer, speaker Speaker, ev Events) *Controller {
	return &Controller{
		responder:    responder,
		recognizer:   recognizer,
		speaker:      speaker,
		ev:           ev,
		state:        StateIdle,
		mode:         ModeManual,
		voiceEnabled: true,
		now:          time.Now,
		submitDelay:  300 * time.Millisecond,
		tickInterval: 3 * time.Second,
	}
}

// State returns the current interaction state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current agent mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// History returns a snapshot of the conversation history in append order.
func (c *Controller) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// ExecutionLog returns a snapshot of the execution log for the current
// submission cycle.
func (c *Controller) ExecutionLog() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.execLog))
	copy(out, c.execLog)
	return out
}

// Activity returns a snapshot of the autonomous background activity list.
func (c *Controller) Activity() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.activity))
	copy(out, c.activity)
	return out
}

// SetVoiceEnabled toggles voice output. It does not interrupt an utterance
// already in progress.
func (c *Controller) SetVoiceEnabled(enabled bool) {
	c.mu.Lock()
	c.voiceEnabled = enabled
	c.mu.Unlock()
}

// VoiceEnabled reports whether voice output is enabled.
func (c *Controller) VoiceEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceEnabled
}

// SetMode switches the agent mode. Every mode change resets the state to
// idle, clears the execution log and starts or stops the autonomous
// activity ticker.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.execLog = nil
	changed := c.setStateLocked(StateIdle)
	c.mu.Unlock()
	if changed {
		c.emitState(StateIdle)
	}
	if m == ModeAutonomous {
		c.startAutonomous()
	} else {
		c.stopAutonomous()
	}
}

// Close stops the autonomous ticker and any active capture session.
func (c *Controller) Close() {
	c.stopAutonomous()
	c.mu.Lock()
	cap, cancel := c.capture, c.captureStop
	c.capture, c.captureStop = nil, nil
	c.mu.Unlock()
	if cap != nil {
		cap.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// Submit runs the submission pipeline for text of any origin (typed, voice
// transcript or quick action). Empty or whitespace-only text is rejected
// with no state change, as is any submission while a prior one is still
// thinking or speaking.
func (c *Controller) Submit(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	if c.state == StateThinking || c.state == StateSpeaking {
		c.mu.Unlock()
		return
	}
	user := c.newMessageLocked(RoleUser, trimmed)
	c.history = append(c.history, user)
	c.execLog = nil
	c.setStateLocked(StateThinking)
	turns := c.boundedContextLocked()
	c.mu.Unlock()

	c.emitTranscript("")
	c.emitMessage(user)
	c.emitState(StateThinking)
	c.record("Received user query", "Manager")
	c.record("Initializing AI Engine reasoning system", "Manager")

	go c.process(trimmed, turns)
}

// process performs the asynchronous half of the submission pipeline: the
// responder call, the single reduced-context retry, the local fallback and
// the resulting state transition. Exactly one assistant message is appended
// per run regardless of outcome.
func (c *Controller) process(text string, turns []Turn) {
	c.record("Loading financial decision framework", "Insight")
	c.record("Fetching latest financial data", "Data")

	reply, err := c.responder.Respond(context.Background(), turns)
	if err != nil {
		log.Printf("responder error: %v", err)
		reply, err = c.responder.Respond(context.Background(), []Turn{{Role: RoleUser, Text: text}})
		if err != nil {
			log.Printf("responder fallback error: %v", err)
			reply = FallbackReply
		}
		c.record("Processing complete", "Manager")
	} else {
		c.record("Analysis complete", "Manager")
		c.record("Generating response", "Manager")
	}

	c.mu.Lock()
	msg := c.newMessageLocked(RoleAssistant, reply)
	c.history = append(c.history, msg)
	speak := (c.mode == ModeVoiceOnly || c.mode == ModeAutonomous) && c.voiceEnabled && c.speaker != nil
	next := StateIdle
	if speak {
		next = StateSpeaking
	}
	c.setStateLocked(next)
	c.mu.Unlock()
	c.emitMessage(msg)
	c.emitState(next)

	if !speak {
		return
	}
	terminal := c.speaker.Speak(context.Background(), truncateRunes(reply, speakLimit))
	serr := <-terminal

	c.mu.Lock()
	// a mode change may already have reset the state
	changed := false
	after := StateIdle
	if c.state == StateSpeaking {
		if serr == nil && c.mode == ModeAutonomous {
			after = StateProcessing
		}
		changed = c.setStateLocked(after)
	}
	c.mu.Unlock()
	if changed {
		c.emitState(after)
	}
	if serr != nil {
		log.Printf("speaker error: %v", serr)
	}
}

// StartListening opens a speech capture session. No-op when voice is
// disabled or a submission is mid-flight; a missing capability surfaces a
// single blocking notice instead.
func (c *Controller) StartListening() {
	c.mu.Lock()
	if !c.voiceEnabled || c.state == StateListening || c.state == StateThinking || c.state == StateSpeaking {
		c.mu.Unlock()
		return
	}
	rec := c.recognizer
	c.mu.Unlock()

	if rec == nil {
		c.notify("Speech recognition is not supported in this environment")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cap, err := rec.Start(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, ErrUnavailable) {
			c.notify("Speech recognition is not supported in this environment")
		} else {
			log.Printf("speech capture start error: %v", err)
		}
		return
	}

	c.mu.Lock()
	c.capture = cap
	c.captureStop = cancel
	c.setStateLocked(StateListening)
	c.mu.Unlock()
	c.emitState(StateListening)

	go c.listen(cap, cancel)
}

// FeedAudio forwards caller-supplied PCM to the active capture session, if
// one is listening and accepts audio. Dropped otherwise.
func (c *Controller) FeedAudio(pcm []byte) {
	c.mu.Lock()
	cap := c.capture
	c.mu.Unlock()
	if f, ok := cap.(AudioFeeder); ok {
		_ = f.SendPCM(pcm)
	}
}

// StopListening requests a normal end of the active capture session. Any
// finalized transcript still flows through the submission pipeline via the
// session's end event.
func (c *Controller) StopListening() {
	c.mu.Lock()
	cap := c.capture
	c.mu.Unlock()
	if cap != nil {
		cap.Stop()
	}
}

// listen consumes one capture session until its end event. A non-empty
// finalized transcript is submitted after a short fixed delay so the final
// text is visible before it clears; an empty or failed session resets to
// idle silently.
func (c *Controller) listen(cap Capture, cancel context.CancelFunc) {
	defer cancel()
	updates := cap.Updates()
	for {
		select {
		case text, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if text != "" {
				c.emitTranscript(text)
			}
		case end := <-cap.End():
			c.mu.Lock()
			c.capture = nil
			c.captureStop = nil
			final := strings.TrimSpace(end.Transcript)
			if end.Err != nil || final == "" {
				changed := false
				if c.state == StateListening {
					changed = c.setStateLocked(StateIdle)
				}
				c.mu.Unlock()
				if changed {
					c.emitState(StateIdle)
				}
				if end.Err != nil {
					log.Printf("speech capture error: %v", end.Err)
				}
				c.emitTranscript("")
				return
			}
			c.mu.Unlock()
			c.emitTranscript(final)
			time.AfterFunc(c.submitDelay, func() { c.Submit(final) })
			return
		}
	}
}

// startAutonomous begins the recurring background activity ticker. The
// ticker never touches the interaction state; it only appends display
// entries, keeping the most recent ten.
func (c *Controller) startAutonomous() {
	c.mu.Lock()
	if c.autoStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.autoStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				label := autonomousTasks[i%len(autonomousTasks)]
				i++
				entry := fmt.Sprintf("%s - %s", c.now().Format("15:04:05"), label)
				c.mu.Lock()
				c.activity = append(c.activity, entry)
				if len(c.activity) > activityCap {
					c.activity = c.activity[len(c.activity)-activityCap:]
				}
				snap := make([]string, len(c.activity))
				copy(snap, c.activity)
				cb := c.ev.OnActivity
				c.mu.Unlock()
				if cb != nil {
					cb(snap)
				}
			}
		}
	}()
}

func (c *Controller) stopAutonomous() {
	c.mu.Lock()
	if c.autoStop != nil {
		close(c.autoStop)
		c.autoStop = nil
	}
	c.mu.Unlock()
}

// record appends an execution-log entry and notifies the host.
func (c *Controller) record(step, agentLabel string) {
	c.mu.Lock()
	entry := LogEntry{Step: step, Timestamp: c.now().Format("15:04:05"), Agent: agentLabel}
	c.execLog = append(c.execLog, entry)
	cb := c.ev.OnLog
	c.mu.Unlock()
	if cb != nil {
		cb(entry)
	}
}

// boundedContextLocked maps the last contextWindow messages (including the
// just-appended user message) to plain role/text pairs.
func (c *Controller) boundedContextLocked() []Turn {
	start := 0
	if len(c.history) > contextWindow {
		start = len(c.history) - contextWindow
	}
	turns := make([]Turn, 0, len(c.history)-start)
	for _, m := range c.history[start:] {
		turns = append(turns, Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}

func (c *Controller) newMessageLocked(role, content string) Message {
	return Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().Format("15:04:05"),
	}
}

// setStateLocked changes the state and reports whether it changed. Callers
// emit the event after releasing the lock so observers see changes in order.
func (c *Controller) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Controller) emitState(s State) {
	if cb := c.ev.OnState; cb != nil {
		cb(s)
	}
}

func (c *Controller) emitMessage(m Message) {
	if cb := c.ev.OnMessage; cb != nil {
		cb(m)
	}
}

func (c *Controller) emitTranscript(text string) {
	if cb := c.ev.OnTranscript; cb != nil {
		cb(text)
	}
}

func (c *Controller) notify(text string) {
	if cb := c.ev.OnNotice; cb != nil {
		cb(text)
	}
}

// truncateRunes limits s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
