package tts

import "context"

// NullSpeaker completes every utterance immediately. Used when no synthesis
// credentials are configured or the session has no audio leg.
type NullSpeaker struct{}

func (NullSpeaker) Speak(ctx context.Context, text string) <-chan error {
	done := make(chan error, 1)
	done <- nil
	return done
}
