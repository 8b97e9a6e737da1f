package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey       string
	ChatModel          string
	EmbeddingModel     string
	LLMTemperature     float32
	DatabaseURL        string
	HTTPPort           string
	LogLevel           string
	LogFormat          string
	SecretKey          string
	TokenExpireMinutes int
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	FrontendURL        string
	AdminEmails        []string
	CORSOrigins        []string
	IndexRoot          string
	DotenvMissing      bool
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	missing := godotenv.Load() != nil

	cfg := Config{
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		ChatModel:          getEnv("GEMINI_CHAT_MODEL", "gemini-1.5-flash-latest"),
		EmbeddingModel:     getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		LLMTemperature:     getEnvAsFloat32("LLM_TEMPERATURE", 0.3),
		DatabaseURL:        getEnv("DATABASE_URL", "virtual_ta.db"),
		HTTPPort:           getEnv("HTTP_PORT", "8000"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		SecretKey:          getEnv("SECRET_KEY", ""),
		TokenExpireMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://127.0.0.1:8000/auth/callback"),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", ""), "/"),
		AdminEmails:        getEnvAsList("ADMIN_EMAILS", ""),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", "*"),
		IndexRoot:          getEnv("INDEX_ROOT", "knowledge_base"),
		DotenvMissing:      missing,
	}

	if cfg.SecretKey == "" {
		return cfg, errors.New("SECRET_KEY environment variable is required")
	}
	if cfg.TokenExpireMinutes <= 0 {
		cfg.TokenExpireMinutes = 60
	}
	return cfg, nil
}

// IsAdminEmail reports whether email is on the ADMIN_EMAILS allow-list.
func (c Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// getEnv treats an empty variable as unset.
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue string) []string {
	parts := strings.Split(getEnv(key, defaultValue), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
