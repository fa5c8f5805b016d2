package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	GeminiAPIKey    string
	GeminiModel     string
	AgentBackendURL string

	AssemblyAIKey    string
	DeepgramAPIKey   string
	DeepgramTTSModel string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	TwilioAuthToken string
}

// Load reads environment variables and returns Config with sane defaults.
// Missing credentials disable the related capability rather than failing
// startup.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	backendURL := os.Getenv("AGENT_BACKEND_URL")
	if geminiKey == "" && backendURL == "" {
		log.Println("Warning: neither GEMINI_API_KEY nor AGENT_BACKEND_URL set - agent replies fall back to canned text")
	}
	geminiModel := os.Getenv("GEMINI_MODEL")

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - speech recognition disabled")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - speech synthesis disabled")
	}
	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "conversations"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: Supabase not configured - conversations will not be archived")
	}

	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - phone webhooks disabled")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:        addr,
		GeminiAPIKey:       geminiKey,
		GeminiModel:        geminiModel,
		AgentBackendURL:    backendURL,
		AssemblyAIKey:      assemblyAIKey,
		DeepgramAPIKey:     deepgramKey,
		DeepgramTTSModel:   deepgramModel,
		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		SupabaseBucket:     supabaseBucket,
		TwilioAuthToken:    twilioToken,
	}
}
