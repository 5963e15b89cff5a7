package util

import (
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from the given .env files (".env" when none are
// given) into the process environment. Variables already set win over the
// file, so deployments can override a checked-in .env.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}
