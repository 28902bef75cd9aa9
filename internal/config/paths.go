package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/haloydev/deploybot/internal/constants"
)

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// ConfigDir returns the directory searched for deploybot config and .env files.
// System mode: /etc/deploybot
// User mode: ~/.config/deploybot
func ConfigDir() (string, error) {
	if envPath, ok := os.LookupEnv(constants.EnvVarConfigDir); ok && envPath != "" {
		return expandPath(envPath)
	}
	if IsSystemMode() {
		return constants.SystemConfigDir, nil
	}
	return expandPath(constants.UserConfigDir)
}

// ConfigPath returns the config location given on the command line, falling
// back to DEPLOYBOT_CONFIG and then to the working directory.
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(constants.EnvVarConfigPath); envPath != "" {
		if expanded, err := expandPath(envPath); err == nil {
			return expanded
		}
		return envPath
	}
	return "."
}

func IsSystemMode() bool {
	if systemInstall := os.Getenv(constants.EnvVarSystemInstall); systemInstall != "" {
		return systemInstall == "true"
	}
	if runtime.GOOS == "windows" {
		return false
	}
	return os.Geteuid() == 0
}
