package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/TheShakSpace/Samyak/internal/agent"
)

const twilioGreeting = "Hello, you have reached the Samyak assistant. How can I help you today?"
const twilioReprompt = "I didn't catch that. Could you say it again?"

func twimlResponse(c echo.Context, elements []twiml.Element) error {
	response, err := twiml.Voice(elements)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// speechGather collects the caller's next utterance and posts it to
// /twilio/respond as SpeechResult.
func speechGather(inner ...twiml.Element) *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Input:         "speech",
		Action:        "/twilio/respond",
		Method:        "POST",
		SpeechTimeout: "auto",
		InnerElements: inner,
	}
}

func (s *Server) handleTwilioVoice(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	c.Echo().Logger.Infof("Call from %s, CallSID: %s", params["From"], params["CallSid"])

	say := &twiml.VoiceSay{Message: twilioGreeting}
	return twimlResponse(c, []twiml.Element{speechGather(say)})
}

// handleTwilioRespond routes each utterance through the responder as an
// independent turn; phone calls carry no conversation history.
func (s *Server) handleTwilioRespond(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	speech := params["SpeechResult"]
	if speech == "" {
		say := &twiml.VoiceSay{Message: twilioReprompt}
		return twimlResponse(c, []twiml.Element{speechGather(say)})
	}

	c.Echo().Logger.Infof("Speech from %s: %q", params["From"], speech)
	reply, err := s.deps.Responder.Respond(c.Request().Context(), []agent.Turn{
		{Role: agent.RoleUser, Text: speech},
	})
	if err != nil {
		reply = agent.FallbackReply
	}

	say := &twiml.VoiceSay{Message: reply}
	return twimlResponse(c, []twiml.Element{speechGather(say)})
}
