package config

import (
	"path/filepath"

	"github.com/haloydev/deploybot/internal/constants"
	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env from the working directory and the config
// directory, then lets .env.local override both. Variables already set in the
// environment win over .env but not over .env.local.
func LoadEnvFiles() {
	dirs := []string{"."}
	if configDir, err := ConfigDir(); err == nil {
		dirs = append(dirs, configDir)
	}

	for _, dir := range dirs {
		_ = godotenv.Load(filepath.Join(dir, constants.ConfigEnvFileName))
	}
	for _, dir := range dirs {
		_ = godotenv.Overload(filepath.Join(dir, constants.ConfigEnvLocalFileName))
	}
}
