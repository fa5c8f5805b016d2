package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	mu      sync.Mutex
	calls   [][]Turn
	respond func(turns []Turn) (string, error)
}

func (f *fakeResponder) Respond(_ context.Context, turns []Turn) (string, error) {
	f.mu.Lock()
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	f.calls = append(f.calls, cp)
	fn := f.respond
	f.mu.Unlock()
	if fn == nil {
		return "ok", nil
	}
	return fn(turns)
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	release chan error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) <-chan error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	rel := f.release
	f.mu.Unlock()
	ch := make(chan error, 1)
	if rel == nil {
		ch <- nil
		return ch
	}
	go func() { ch <- <-rel }()
	return ch
}

func (f *fakeSpeaker) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

type fakeCapture struct {
	updates chan string
	end     chan CaptureEnd
	final   string
}

func newFakeCapture(final string) *fakeCapture {
	return &fakeCapture{updates: make(chan string, 10), end: make(chan CaptureEnd, 1), final: final}
}

func (f *fakeCapture) Updates() <-chan string  { return f.updates }
func (f *fakeCapture) End() <-chan CaptureEnd  { return f.end }
func (f *fakeCapture) Stop()                   { f.end <- CaptureEnd{Transcript: f.final} }
func (f *fakeCapture) finish(e CaptureEnd)     { f.end <- e }
func (f *fakeCapture) push(text string)        { f.updates <- text }

type fakeRecognizer struct {
	cap *fakeCapture
	err error
}

func (f *fakeRecognizer) Start(context.Context) (Capture, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cap, nil
}

func newTestController(r Responder, rec Recognizer, sp Speaker, ev Events) *Controller {
	c := NewController(r, rec, sp, ev)
	c.submitDelay = 10 * time.Millisecond
	c.tickInterval = 20 * time.Millisecond
	return c
}

func waitIdleOrSpeaking(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.State()
		return s == StateIdle || s == StateSpeaking || s == StateProcessing
	}, time.Second, 2*time.Millisecond, "pipeline never left thinking")
}

func TestSubmit_ManualMode_OneUserOneAssistant(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "here is your report", nil }}
	sp := &fakeSpeaker{}
	c := newTestController(resp, nil, sp, Events{})
	defer c.Close()

	c.Submit("Generate budget report")
	waitIdleOrSpeaking(t, c)

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "Generate budget report", history[0].Content)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, "here is your report", history[1].Content)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, sp.spokenTexts(), "voice output must not trigger in manual mode")
}

func TestSubmit_EmptyText_NoMessagesNoTransition(t *testing.T) {
	resp := &fakeResponder{}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	c.Submit("")
	c.Submit("   \n\t ")

	assert.Empty(t, c.History())
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, resp.callCount())
}

func TestSubmit_MessageIDsUniqueAndOrdered(t *testing.T) {
	c := newTestController(&fakeResponder{}, nil, nil, Events{})
	defer c.Close()

	c.Submit("first")
	waitIdleOrSpeaking(t, c)
	c.Submit("second")
	waitIdleOrSpeaking(t, c)

	history := c.History()
	require.Len(t, history, 4)
	seen := map[string]bool{}
	prev := ""
	for _, m := range history {
		require.NotEmpty(t, m.ID)
		require.False(t, seen[m.ID], "duplicate message id %s", m.ID)
		seen[m.ID] = true
		require.True(t, m.ID > prev, "ids must be ordered by creation: %s !> %s", m.ID, prev)
		prev = m.ID
	}
}

func TestSubmit_WhileThinking_IsNoOp(t *testing.T) {
	gate := make(chan struct{})
	resp := &fakeResponder{respond: func([]Turn) (string, error) {
		<-gate
		return "done", nil
	}}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	c.Submit("first")
	require.Eventually(t, func() bool { return c.State() == StateThinking }, time.Second, time.Millisecond)

	c.Submit("second") // must be rejected
	assert.Len(t, c.History(), 1)

	close(gate)
	waitIdleOrSpeaking(t, c)
	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
}

func TestSubmit_BoundedContext_LastTenMessages(t *testing.T) {
	resp := &fakeResponder{}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	for i := 0; i < 7; i++ {
		c.Submit("question")
		waitIdleOrSpeaking(t, c)
	}

	resp.mu.Lock()
	defer resp.mu.Unlock()
	last := resp.calls[len(resp.calls)-1]
	require.Len(t, last, contextWindow)
	assert.Equal(t, RoleUser, last[len(last)-1].Role)
	assert.Equal(t, "question", last[len(last)-1].Text)
}

func TestSubmit_PrimaryFails_RetriesWithSingleMessageContext(t *testing.T) {
	var calls [][]Turn
	var mu sync.Mutex
	resp := &fakeResponder{respond: func(turns []Turn) (string, error) {
		mu.Lock()
		cp := make([]Turn, len(turns))
		copy(cp, turns)
		calls = append(calls, cp)
		n := len(calls)
		mu.Unlock()
		if n == 1 {
			return "", errors.New("upstream 500")
		}
		return "recovered", nil
	}}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	c.Submit("status check")
	waitIdleOrSpeaking(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	require.Len(t, calls[1], 1, "retry must carry only the original user text")
	assert.Equal(t, Turn{Role: RoleUser, Text: "status check"}, calls[1][0])

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "recovered", history[1].Content)
}

func TestSubmit_BothCallsFail_SynthesizedMessageAndNotStuck(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "", errors.New("down") }}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	c.Submit("anything")
	waitIdleOrSpeaking(t, c)

	assert.Equal(t, 2, resp.callCount(), "exactly one retry, no more")
	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, FallbackReply, history[1].Content)
	assert.Contains(t, []State{StateIdle, StateSpeaking}, c.State())
}

func TestSubmit_VoiceOnly_SpeaksFirst500Runes(t *testing.T) {
	long := strings.Repeat("é", 600)
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return long, nil }}
	sp := &fakeSpeaker{}
	c := newTestController(resp, nil, sp, Events{})
	defer c.Close()
	c.SetMode(ModeVoiceOnly)

	c.Submit("status check")
	require.Eventually(t, func() bool { return len(sp.spokenTexts()) == 1 }, time.Second, 2*time.Millisecond)

	spoken := sp.spokenTexts()[0]
	assert.Equal(t, 500, len([]rune(spoken)))
	assert.Equal(t, strings.Repeat("é", 500), spoken)

	// voice-only returns to idle after the utterance ends
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, 2*time.Millisecond)
}

func TestSubmit_Autonomous_SpeakingThenProcessing(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "reply", nil }}
	sp := &fakeSpeaker{release: make(chan error, 1)}
	c := newTestController(resp, nil, sp, Events{})
	defer c.Close()
	c.SetMode(ModeAutonomous)

	c.Submit("go")
	require.Eventually(t, func() bool { return c.State() == StateSpeaking }, time.Second, 2*time.Millisecond)

	sp.release <- nil
	require.Eventually(t, func() bool { return c.State() == StateProcessing }, time.Second, 2*time.Millisecond)
}

func TestSubmit_SpeakerError_ResetsToIdle(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "reply", nil }}
	sp := &fakeSpeaker{release: make(chan error, 1)}
	c := newTestController(resp, nil, sp, Events{})
	defer c.Close()
	c.SetMode(ModeAutonomous)

	c.Submit("go")
	require.Eventually(t, func() bool { return c.State() == StateSpeaking }, time.Second, 2*time.Millisecond)

	sp.release <- errors.New("synthesis failed")
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, 2*time.Millisecond)
}

func TestSubmit_VoiceOutputDisabled_NoSpeech(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "reply", nil }}
	sp := &fakeSpeaker{}
	c := newTestController(resp, nil, sp, Events{})
	defer c.Close()
	c.SetMode(ModeVoiceOnly)
	c.SetVoiceEnabled(false)

	c.Submit("hello")
	waitIdleOrSpeaking(t, c)

	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, sp.spokenTexts())
}

func TestListening_EmptyFinalTranscript_IdleNoMessages(t *testing.T) {
	capt := newFakeCapture("")
	rec := &fakeRecognizer{cap: capt}
	c := newTestController(&fakeResponder{}, rec, nil, Events{})
	defer c.Close()

	c.StartListening()
	require.Eventually(t, func() bool { return c.State() == StateListening }, time.Second, time.Millisecond)

	capt.finish(CaptureEnd{Transcript: "   "})
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Empty(t, c.History())
}

func TestListening_FinalTranscript_SubmitsAfterDelay(t *testing.T) {
	capt := newFakeCapture("")
	rec := &fakeRecognizer{cap: capt}
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "on it", nil }}
	c := newTestController(resp, rec, nil, Events{})
	defer c.Close()

	c.StartListening()
	require.Eventually(t, func() bool { return c.State() == StateListening }, time.Second, time.Millisecond)

	capt.push("deploy the")
	capt.finish(CaptureEnd{Transcript: "deploy the report"})

	require.Eventually(t, func() bool { return len(c.History()) == 2 }, time.Second, 2*time.Millisecond)
	history := c.History()
	assert.Equal(t, "deploy the report", history[0].Content)
	assert.Equal(t, RoleUser, history[0].Role)
}

func TestListening_CaptureError_SilentReset(t *testing.T) {
	capt := newFakeCapture("")
	rec := &fakeRecognizer{cap: capt}
	var notices []string
	c := newTestController(&fakeResponder{}, rec, nil, Events{
		OnNotice: func(s string) { notices = append(notices, s) },
	})
	defer c.Close()

	c.StartListening()
	require.Eventually(t, func() bool { return c.State() == StateListening }, time.Second, time.Millisecond)

	capt.finish(CaptureEnd{Err: errors.New("mic lost")})
	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Empty(t, c.History())
	assert.Empty(t, notices, "runtime capture errors must stay silent")
}

func TestListening_CapabilityUnavailable_BlockingNotice(t *testing.T) {
	rec := &fakeRecognizer{err: ErrUnavailable}
	var mu sync.Mutex
	var notices []string
	c := newTestController(&fakeResponder{}, rec, nil, Events{
		OnNotice: func(s string) { mu.Lock(); notices = append(notices, s); mu.Unlock() },
	})
	defer c.Close()

	c.StartListening()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notices, 1)
	assert.Equal(t, StateIdle, c.State())
}

func TestListening_BlockedWhileThinking(t *testing.T) {
	gate := make(chan struct{})
	resp := &fakeResponder{respond: func([]Turn) (string, error) { <-gate; return "x", nil }}
	rec := &fakeRecognizer{cap: newFakeCapture("")}
	c := newTestController(resp, rec, nil, Events{})
	defer c.Close()

	c.Submit("hold")
	require.Eventually(t, func() bool { return c.State() == StateThinking }, time.Second, time.Millisecond)

	c.StartListening()
	assert.Equal(t, StateThinking, c.State())
	close(gate)
	waitIdleOrSpeaking(t, c)
}

func TestSetMode_AutonomousTicksAndStops(t *testing.T) {
	c := newTestController(&fakeResponder{}, nil, nil, Events{})
	defer c.Close()

	c.SetMode(ModeAutonomous)
	require.Eventually(t, func() bool { return len(c.Activity()) >= 2 }, time.Second, 2*time.Millisecond)

	c.SetMode(ModeManual)
	assert.Equal(t, StateIdle, c.State())
	n := len(c.Activity())

	// wait well past the tick interval; no new entries may appear
	time.Sleep(5 * c.tickInterval)
	assert.Equal(t, n, len(c.Activity()))
}

func TestAutonomousActivity_CappedAtTen(t *testing.T) {
	c := newTestController(&fakeResponder{}, nil, nil, Events{})
	c.tickInterval = 2 * time.Millisecond
	defer c.Close()

	c.SetMode(ModeAutonomous)
	require.Eventually(t, func() bool { return len(c.Activity()) == activityCap }, time.Second, time.Millisecond)

	time.Sleep(20 * c.tickInterval)
	assert.Equal(t, activityCap, len(c.Activity()))
}

func TestExecutionLog_ClearedOnSubmissionAndModeChange(t *testing.T) {
	c := newTestController(&fakeResponder{}, nil, nil, Events{})
	defer c.Close()

	c.Submit("first")
	waitIdleOrSpeaking(t, c)
	require.NotEmpty(t, c.ExecutionLog())

	c.Submit("second")
	waitIdleOrSpeaking(t, c)
	logs := c.ExecutionLog()
	// only entries from the second cycle remain
	require.NotEmpty(t, logs)
	assert.Equal(t, "Received user query", logs[0].Step)

	c.SetMode(ModeAssisted)
	assert.Empty(t, c.ExecutionLog())
}

func TestSubmit_FallbackPath_RecordsProcessingComplete(t *testing.T) {
	resp := &fakeResponder{respond: func([]Turn) (string, error) { return "", errors.New("down") }}
	c := newTestController(resp, nil, nil, Events{})
	defer c.Close()

	c.Submit("anything")
	waitIdleOrSpeaking(t, c)

	steps := make([]string, 0)
	for _, e := range c.ExecutionLog() {
		steps = append(steps, e.Step)
	}
	assert.Contains(t, steps, "Processing complete")
	assert.NotContains(t, steps, "Analysis complete")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "héé", truncateRunes("hééx", 3))
	assert.Equal(t, "", truncateRunes("", 10))
}

type feedableCapture struct {
	*fakeCapture
	mu  sync.Mutex
	fed [][]byte
}

func (f *feedableCapture) SendPCM(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed = append(f.fed, pcm)
	return nil
}

type staticRecognizer struct{ cap Capture }

func (s staticRecognizer) Start(context.Context) (Capture, error) { return s.cap, nil }

func TestFeedAudio_ReachesActiveCapture(t *testing.T) {
	fc := &feedableCapture{fakeCapture: newFakeCapture("")}
	c := newTestController(&fakeResponder{}, staticRecognizer{cap: fc}, nil, Events{})
	defer c.Close()

	c.FeedAudio([]byte{1, 2}) // nothing listening yet
	c.StartListening()
	require.Eventually(t, func() bool { return c.State() == StateListening }, time.Second, 2*time.Millisecond)
	c.FeedAudio([]byte{3, 4})

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.fed, 1)
	assert.Equal(t, []byte{3, 4}, fc.fed[0])
}
