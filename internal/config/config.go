package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath   string
	LogLevel string

	// MatchProposalThreshold is the minimum similarity a candidate needs to
	// be proposed automatically; below it the value stays unresolved.
	MatchProposalThreshold float64

	// UpdateReason tags every bulk update issued for duplicate rows.
	UpdateReason string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:                 getEnv("DB_PATH", filepath.Join(cwd, "data", "loteiro.db")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		MatchProposalThreshold: getEnvFloat("MATCH_PROPOSAL_THRESHOLD", 0.6),
		UpdateReason:           getEnv("IMPORT_UPDATE_REASON", "importacao-planilha"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
