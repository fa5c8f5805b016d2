package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func signTwilio(authToken, fullURL string, params map[string]string) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func doTwilioRequest(t *testing.T, token, signature string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	handler := TwilioAuth(func() string { return token })(func(c echo.Context) error {
		got, ok := c.Get("twilioParams").(map[string]string)
		if !ok {
			t.Fatal("twilioParams not set")
		}
		return c.String(http.StatusOK, got["SpeechResult"])
	})

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/twilio/respond", strings.NewReader(form.Encode()))
	req.Host = "example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestTwilioAuth_ValidSignature(t *testing.T) {
	params := map[string]string{"CallSid": "CA123", "SpeechResult": "hello there"}
	sig := signTwilio("token", "https://example.com/twilio/respond", params)
	rec := doTwilioRequest(t, "token", sig, params)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello there" {
		t.Fatalf("params not passed through: %q", rec.Body.String())
	}
}

func TestTwilioAuth_InvalidSignature(t *testing.T) {
	params := map[string]string{"CallSid": "CA123"}
	rec := doTwilioRequest(t, "token", "bogus", params)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTwilioAuth_MissingSignature(t *testing.T) {
	rec := doTwilioRequest(t, "token", "", map[string]string{"CallSid": "CA123"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTwilioAuth_NoTokenConfigured(t *testing.T) {
	rec := doTwilioRequest(t, "", "sig", map[string]string{})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTwilioAuth_TamperedParams(t *testing.T) {
	params := map[string]string{"SpeechResult": "original"}
	sig := signTwilio("token", "https://example.com/twilio/respond", params)
	rec := doTwilioRequest(t, "token", sig, map[string]string{"SpeechResult": "tampered"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
