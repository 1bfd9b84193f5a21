package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxUploadMB         = 25
	defaultExtractionTimeout   = 30 * time.Second
	defaultConfidenceThreshold = 0.5
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	AppName             string
	AgentName           string
	CloudProject        string
	CloudLocation       string
	UseVertexAI         string
	APIKey              string
	CredentialsFile     string
	PrimaryModel        string
	SecondaryModel      string
	PrimaryProvider     string
	PrimaryEndpoint     string
	DemoDelay           time.Duration
	FieldCatalogPath    string
	ExtractionTimeout   time.Duration
	ConfidenceThreshold float64
	MaxUploadBytes      int64
	TempDir             string

	DatabaseURL     string
	HistoryStore    string
	HistoryBoltPath string

	RateLimitExtractRPS   float64
	RateLimitExtractBurst int

	// invalid collects keys whose values could not be parsed; reported by Validate.
	invalid []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		Env:              normalizeEnv(getEnv("ENV", "dev")),
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		AppName:          getEnv("APP_NAME", "catastro_ai_app"),
		AgentName:        getEnv("AGENT_NAME", "catastro_ai_agent"),
		CloudProject:     strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
		CloudLocation:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		UseVertexAI:      getEnv("GOOGLE_GENAI_USE_VERTEXAI", "1"),
		APIKey:           strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		CredentialsFile:  strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		PrimaryModel:     getEnv("PRIMARY_MODEL", "gemini-2.5-flash"),
		SecondaryModel:   getEnv("SECONDARY_MODEL", "document-ai-specialist"),
		PrimaryProvider:  normalizeProvider(getEnv("PRIMARY_PROVIDER", "vertex")),
		PrimaryEndpoint:  strings.TrimSpace(os.Getenv("PRIMARY_ENDPOINT")),
		FieldCatalogPath: strings.TrimSpace(os.Getenv("FIELD_CATALOG_PATH")),
		TempDir:          getEnv("TEMP_DIR", "./temp_uploads"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HistoryBoltPath:  getEnv("HISTORY_BOLT_PATH", "./data/history.db"),
	}
	cfg.HistoryStore = normalizeHistoryStore(getEnv("HISTORY_STORE", ""), cfg.DatabaseURL)

	cfg.ExtractionTimeout = cfg.durationEnv("EXTRACTION_TIMEOUT", defaultExtractionTimeout)
	cfg.DemoDelay = cfg.durationEnv("DEMO_DELAY", time.Second)
	cfg.ConfidenceThreshold = cfg.floatEnv("CONFIDENCE_THRESHOLD", defaultConfidenceThreshold)
	cfg.MaxUploadBytes = int64(cfg.intEnv("MAX_UPLOAD_MB", defaultMaxUploadMB)) << 20
	cfg.RateLimitExtractRPS = cfg.floatEnv("RATE_LIMIT_EXTRACT_RPS", 2)
	cfg.RateLimitExtractBurst = cfg.intEnv("RATE_LIMIT_EXTRACT_BURST", 10)

	return cfg
}

// Validate reports missing or malformed settings. The service must not
// extract documents while Validate returns an error.
func (c Config) Validate() error {
	cfgErr := &ConfigurationError{Invalid: append([]string(nil), c.invalid...)}
	if c.CloudProject == "" {
		cfgErr.Missing = append(cfgErr.Missing, "GOOGLE_CLOUD_PROJECT")
	}
	if strings.TrimSpace(c.CloudLocation) == "" {
		cfgErr.Missing = append(cfgErr.Missing, "GOOGLE_CLOUD_LOCATION")
	}
	if strings.TrimSpace(c.PrimaryModel) == "" {
		cfgErr.Missing = append(cfgErr.Missing, "PRIMARY_MODEL")
	}
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		cfgErr.Invalid = append(cfgErr.Invalid, "CONFIDENCE_THRESHOLD")
	}
	if c.ExtractionTimeout <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "EXTRACTION_TIMEOUT")
	}
	if c.MaxUploadBytes <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "MAX_UPLOAD_MB")
	}
	if c.PrimaryProvider == "vertex" && !c.VertexEnabled() && c.APIKey == "" {
		cfgErr.Missing = append(cfgErr.Missing, "GOOGLE_API_KEY")
	}
	if c.HistoryStore == "postgres" && c.DatabaseURL == "" {
		cfgErr.Missing = append(cfgErr.Missing, "DATABASE_URL")
	}
	if len(cfgErr.Missing) == 0 && len(cfgErr.Invalid) == 0 {
		return nil
	}
	return cfgErr
}

// VertexEnabled reports whether the primary model is reached through Vertex AI
// (application-default credentials) rather than the Gemini API with a key.
func (c Config) VertexEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.UseVertexAI)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// ResolvedPrimaryEndpoint returns the chat-completions URL of the primary model.
func (c Config) ResolvedPrimaryEndpoint() string {
	if c.PrimaryEndpoint != "" {
		return c.PrimaryEndpoint
	}
	if c.VertexEnabled() {
		return fmt.Sprintf(
			"https://%[1]s-aiplatform.googleapis.com/v1/projects/%[2]s/locations/%[1]s/endpoints/openapi/chat/completions",
			c.CloudLocation, c.CloudProject,
		)
	}
	return "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
}

// ConfigurationError lists the settings that prevent the service from running.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("configuration error: %s", strings.Join(parts, "; "))
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Plain integers are seconds, matching the *_SECONDS style used elsewhere.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	c.invalid = append(c.invalid, key)
	return def
}

func (c *Config) floatEnv(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.invalid = append(c.invalid, key)
		return def
	}
	return val
}

func (c *Config) intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		c.invalid = append(c.invalid, key)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "demo", "mock":
		return "demo"
	default:
		return "vertex"
	}
}

func normalizeHistoryStore(raw, databaseURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "bolt", "bbolt":
		return "bolt"
	case "memory":
		return "memory"
	}
	if databaseURL != "" {
		return "postgres"
	}
	return "memory"
}
