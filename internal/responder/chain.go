// Package responder implements the remote responder strategies that turn a
// user utterance into a reply: a direct Gemini call, the task backend's
// agent endpoint, and a canned local fallback, tried in order by Chain.
package responder

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

// Named pairs a responder with a label for logging.
type Named struct {
	Name      string
	Responder agent.Responder
}

// Chain tries each responder in order until one yields a usable (non-empty)
// reply. It keeps the retry/fallback policy declarative: selection lives
// here, while the controller owns its own single reduced-context retry.
type Chain struct {
	responders []Named
}

// NewChain builds a chain from the given strategies, first tried first.
func NewChain(responders ...Named) *Chain {
	return &Chain{responders: responders}
}

// Respond implements agent.Responder.
func (c *Chain) Respond(ctx context.Context, turns []agent.Turn) (string, error) {
	var lastErr error
	for _, r := range c.responders {
		reply, err := r.Responder.Respond(ctx, turns)
		if err != nil {
			log.Printf("responder %s failed: %v", r.Name, err)
			lastErr = fmt.Errorf("%s: %w", r.Name, err)
			continue
		}
		if strings.TrimSpace(reply) == "" {
			log.Printf("responder %s returned empty reply", r.Name)
			lastErr = fmt.Errorf("%s: empty reply", r.Name)
			continue
		}
		return reply, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no responders configured")
	}
	return "", lastErr
}

// lastUserText returns the text of the most recent user turn.
func lastUserText(turns []agent.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == agent.RoleUser {
			return turns[i].Text
		}
	}
	return ""
}
