package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("SUPABASE_BUCKET", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.SupabaseBucket != "conversations" {
		t.Fatalf("expected default bucket, got %q", cfg.SupabaseBucket)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9000")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GEMINI_MODEL", "gemini-3-flash-preview")
	t.Setenv("AGENT_BACKEND_URL", "http://localhost:8000")
	t.Setenv("TWILIO_AUTH_TOKEN", "tw-token")
	cfg := Load()
	if cfg.HTTPAddress != ":9000" {
		t.Fatalf("HTTPAddress = %q", cfg.HTTPAddress)
	}
	if cfg.GeminiAPIKey != "g-key" || cfg.GeminiModel != "gemini-3-flash-preview" {
		t.Fatalf("gemini config not loaded")
	}
	if cfg.AgentBackendURL != "http://localhost:8000" {
		t.Fatalf("AgentBackendURL = %q", cfg.AgentBackendURL)
	}
	if cfg.TwilioAuthToken != "tw-token" {
		t.Fatalf("TwilioAuthToken = %q", cfg.TwilioAuthToken)
	}
}
