package config

import (
	"os"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenv loads a .env file once per process. ENV_FILE points at a
// specific file; NO_DOTENV=1 disables loading. Variables already present in
// the environment win.
func LoadDotenv() {
	dotenvOnce.Do(func() {
		if os.Getenv("NO_DOTENV") == "1" {
			return
		}
		if f := os.Getenv("ENV_FILE"); f != "" {
			_ = godotenv.Load(f)
			return
		}
		_ = godotenv.Load(".env")
	})
}
