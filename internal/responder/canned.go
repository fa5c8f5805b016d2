package responder

import (
	"context"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

// Canned always answers with a fixed text. Placed last in the chain it
// guarantees the conversation never dead-ends when every remote strategy
// is down or unconfigured.
type Canned struct {
	Text string
}

// NewCanned returns a Canned responder; an empty text defaults to the
// controller's synthesized fallback reply.
func NewCanned(text string) *Canned {
	if text == "" {
		text = agent.FallbackReply
	}
	return &Canned{Text: text}
}

func (c *Canned) Respond(context.Context, []agent.Turn) (string, error) {
	return c.Text, nil
}
