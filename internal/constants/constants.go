package constants

import "time"

var Version = "dev"

const (
	AppName = "deploybot"

	ConfigFileName         = "deploybot"
	ConfigEnvFileName      = ".env"
	ConfigEnvLocalFileName = ".env.local"

	EnvVarConfigPath    = "DEPLOYBOT_CONFIG"
	EnvVarConfigDir     = "DEPLOYBOT_CONFIG_DIR"
	EnvVarSystemInstall = "DEPLOYBOT_SYSTEM_INSTALL"
	EnvVarDebug         = "DEPLOYBOT_DEBUG"
	EnvVarAPIToken      = "DEPLOYBOT_API_TOKEN"

	SystemConfigDir = "/etc/deploybot"
	UserConfigDir   = "~/.config/deploybot"

	// CommitLength is the number of characters of a commit id used as an image tag.
	CommitLength = 7

	DefaultListenAddress   = ":8080"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultLockTimeout     = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
	DefaultLockTTL         = 5 * time.Minute

	DefaultGitHubAPIURL  = "https://api.github.com"
	DefaultGitLabAPIURL  = "https://gitlab.com/api/v4"
	DefaultQuayAPIURL    = "https://quay.io/api/v1"
	MaxUpstreamBodyBytes = 1 << 20

	// DefaultResponseHost is the only host a command's responseUrl may point
	// to unless the configuration names others.
	DefaultResponseHost = "hooks.slack.com"
)
