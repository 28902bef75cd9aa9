package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/jinzhu/copier"
)

const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"

	LockMemory = "memory"
	LockRedis  = "redis"
	LockNone   = "none"

	maskedValue = "********"
)

// Config is built once at startup and passed to every component.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server" toml:"server"`
	Log           LogConfig           `json:"log" yaml:"log" toml:"log"`
	HTTP          HTTPConfig          `json:"http" yaml:"http" toml:"http"`
	Permissions   PermissionsConfig   `json:"permissions" yaml:"permissions" toml:"permissions"`
	Staff         StaffConfig         `json:"staff" yaml:"staff" toml:"staff"`
	Slack         SlackConfig         `json:"slack" yaml:"slack" toml:"slack"`
	SourceControl SourceControlConfig `json:"sourceControl" yaml:"source_control" toml:"source_control"`
	Quay          QuayConfig          `json:"quay" yaml:"quay" toml:"quay"`
	Rancher       RancherConfig       `json:"rancher" yaml:"rancher" toml:"rancher"`
	Redis         RedisConfig         `json:"redis" yaml:"redis" toml:"redis"`
	Lock          LockConfig          `json:"lock" yaml:"lock" toml:"lock"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics" toml:"metrics"`
}

type ServerConfig struct {
	Listen   string `json:"listen" yaml:"listen" toml:"listen" default:":8080" validate:"required"`
	APIToken string `json:"apiToken" yaml:"api_token" toml:"api_token"`
	// ShutdownTimeout bounds how long in-flight pipelines are waited for.
	ShutdownTimeout   string  `json:"shutdownTimeout" yaml:"shutdown_timeout" toml:"shutdown_timeout" default:"30s" validate:"duration"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requests_per_second" toml:"requests_per_second" default:"5" validate:"gt=0"`
	Burst             int     `json:"burst" yaml:"burst" toml:"burst" default:"10" validate:"gte=1"`
}

func (c ServerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeout, constants.DefaultShutdownTimeout)
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Format string `json:"format" yaml:"format" toml:"format" default:"text" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Timeout string `json:"timeout" yaml:"timeout" toml:"timeout" default:"30s" validate:"duration"`
}

func (c HTTPConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, constants.DefaultHTTPTimeout)
}

// PermissionsConfig lists the actors allowed to run commands. With RedisKey
// set the list lives in a Redis set seeded from Allowed.
type PermissionsConfig struct {
	Allowed  []string `json:"allowed" yaml:"allowed" toml:"allowed"`
	RedisKey string   `json:"redisKey" yaml:"redis_key" toml:"redis_key"`
}

type StaffConfig struct {
	Names      []string `json:"names" yaml:"names" toml:"names"`
	WebhookURL string   `json:"webhookUrl" yaml:"webhook_url" toml:"webhook_url" validate:"omitempty,url"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhookUrl" yaml:"webhook_url" toml:"webhook_url" validate:"omitempty,url"`
	// ResponseHosts are the hosts a command's responseUrl may point to.
	// Empty means hooks.slack.com only.
	ResponseHosts []string `json:"responseHosts" yaml:"response_hosts" toml:"response_hosts" validate:"dive,hostname_rfc1123"`
}

type SourceControlConfig struct {
	Provider string `json:"provider" yaml:"provider" toml:"provider" default:"github" validate:"oneof=github gitlab"`
	// Repositories maps workload names to repository names when they differ.
	Repositories map[string]string `json:"repositories" yaml:"repositories" toml:"repositories"`
	GitHub       GitHubConfig      `json:"github" yaml:"github" toml:"github"`
	GitLab       GitLabConfig      `json:"gitlab" yaml:"gitlab" toml:"gitlab"`
}

type GitHubConfig struct {
	URL          string `json:"url" yaml:"url" toml:"url" default:"https://api.github.com" validate:"url"`
	Token        string `json:"token" yaml:"token" toml:"token"`
	Organization string `json:"organization" yaml:"organization" toml:"organization"`
}

type GitLabConfig struct {
	URL   string `json:"url" yaml:"url" toml:"url" default:"https://gitlab.com/api/v4" validate:"url"`
	Token string `json:"token" yaml:"token" toml:"token"`
	Group string `json:"group" yaml:"group" toml:"group"`
}

type QuayConfig struct {
	URL               string  `json:"url" yaml:"url" toml:"url" default:"https://quay.io/api/v1" validate:"url"`
	Token             string  `json:"token" yaml:"token" toml:"token" validate:"required"`
	Namespace         string  `json:"namespace" yaml:"namespace" toml:"namespace" validate:"required"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requests_per_second" toml:"requests_per_second" default:"5" validate:"gt=0"`
}

type RancherConfig struct {
	URL       string `json:"url" yaml:"url" toml:"url" validate:"required,url"`
	AccessKey string `json:"accessKey" yaml:"access_key" toml:"access_key" validate:"required"`
	SecretKey string `json:"secretKey" yaml:"secret_key" toml:"secret_key" validate:"required"`
	// Environments maps Staging and Production to project names.
	Environments      map[string]string `json:"environments" yaml:"environments" toml:"environments"`
	RequestsPerSecond float64           `json:"requestsPerSecond" yaml:"requests_per_second" toml:"requests_per_second" default:"5" validate:"gt=0"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url" toml:"url" validate:"omitempty,url"`
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

type LockConfig struct {
	Backend string `json:"backend" yaml:"backend" toml:"backend" default:"memory" validate:"oneof=memory redis none"`
	// Timeout is how long a request waits for a busy workload.
	Timeout string `json:"timeout" yaml:"timeout" toml:"timeout" default:"2m" validate:"duration"`
	TTL     string `json:"ttl" yaml:"ttl" toml:"ttl" default:"5m" validate:"duration"`
}

func (c LockConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, constants.DefaultLockTimeout)
}

func (c LockConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, constants.DefaultLockTTL)
}

type MetricsConfig struct {
	Enabled *bool `json:"enabled" yaml:"enabled" toml:"enabled"` // nil means enabled
}

func (c MetricsConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// New returns a config with every default applied.
func New() (c Config) {
	defaults.MustSet(&c)
	return c
}

// Normalize fills unset fields with their defaults.
func (c *Config) Normalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	c.Permissions.Allowed = trimAll(c.Permissions.Allowed)
	c.Staff.Names = trimAll(c.Staff.Names)
	return nil
}

// EnvironmentProjects returns the project name mapping keyed by environment.
func (c RancherConfig) EnvironmentProjects() (map[deploytypes.Environment]string, error) {
	out := make(map[deploytypes.Environment]string, len(c.Environments))
	for name, project := range c.Environments {
		env, err := deploytypes.ParseEnvironment(name)
		if err != nil {
			return nil, fmt.Errorf("rancher.environments: %w", err)
		}
		out[env] = project
	}
	return out, nil
}

var validate *validator.Validate

// Validate checks the struct tags and the rules that span several sections.
// Every failure wraps deploytypes.ErrMisconfigured.
func (c Config) Validate() error {
	if validate == nil {
		validate = validator.New()
		_ = validate.RegisterValidation("duration", validateDuration)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", deploytypes.ErrMisconfigured, describeValidationError(err))
	}

	var problems []string
	switch c.SourceControl.Provider {
	case ProviderGitHub:
		if c.SourceControl.GitHub.Token == "" || c.SourceControl.GitHub.Organization == "" {
			problems = append(problems, "source_control.github needs a token and an organization")
		}
	case ProviderGitLab:
		if c.SourceControl.GitLab.Token == "" || c.SourceControl.GitLab.Group == "" {
			problems = append(problems, "source_control.gitlab needs a token and a group")
		}
	}
	if c.Lock.Backend == LockRedis && !c.Redis.Enabled() {
		problems = append(problems, "lock.backend redis needs redis.url")
	}
	if c.Permissions.RedisKey != "" && !c.Redis.Enabled() {
		problems = append(problems, "permissions.redis_key needs redis.url")
	}
	if c.Permissions.RedisKey == "" && len(c.Permissions.Allowed) == 0 {
		problems = append(problems, "permissions.allowed is empty, nobody could run a command")
	}
	if _, err := c.Rancher.EnvironmentProjects(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", deploytypes.ErrMisconfigured, strings.Join(problems, "; "))
	}
	return nil
}

// Masked returns a copy with every credential replaced, for display.
func (c Config) Masked() (Config, error) {
	var out Config
	if err := copier.CopyWithOption(&out, &c, copier.Option{DeepCopy: true}); err != nil {
		return Config{}, fmt.Errorf("failed to copy config: %w", err)
	}
	for _, secret := range []*string{
		&out.Server.APIToken,
		&out.SourceControl.GitHub.Token,
		&out.SourceControl.GitLab.Token,
		&out.Quay.Token,
		&out.Rancher.AccessKey,
		&out.Rancher.SecretKey,
		&out.Slack.WebhookURL,
		&out.Staff.WebhookURL,
		&out.Redis.URL,
	} {
		if *secret != "" {
			*secret = maskedValue
		}
	}
	return out, nil
}

func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		v = strings.TrimPrefix(strings.TrimSpace(v), "@")
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
