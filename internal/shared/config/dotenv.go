package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"catastro-backend/internal/shared/telemetry"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment win. A file that exists but
// cannot be read or parsed is logged and skipped.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				telemetry.Warn("config.dotenv_unreadable", map[string]any{"path": path, "error": err})
			}
			continue
		}
		if err := godotenv.Load(path); err != nil {
			telemetry.Warn("config.dotenv_invalid", map[string]any{"path": path, "error": err})
		}
	}
}
