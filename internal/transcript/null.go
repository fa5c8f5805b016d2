package transcript

import (
	"context"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

// NullRecognizer reports speech recognition as absent. Used when no
// transcription credentials are configured so the controller surfaces a
// capability notice instead of failing mid-session.
type NullRecognizer struct{}

func (NullRecognizer) Start(ctx context.Context) (agent.Capture, error) {
	return nil, agent.ErrUnavailable
}
