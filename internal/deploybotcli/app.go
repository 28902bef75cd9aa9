package deploybotcli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/haloydev/deploybot/internal/config"
	"github.com/haloydev/deploybot/internal/configloader"
	"github.com/haloydev/deploybot/internal/deploy"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/dispatch"
	"github.com/haloydev/deploybot/internal/github"
	"github.com/haloydev/deploybot/internal/gitlab"
	"github.com/haloydev/deploybot/internal/lock"
	"github.com/haloydev/deploybot/internal/metrics"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/haloydev/deploybot/internal/permission"
	"github.com/haloydev/deploybot/internal/quay"
	"github.com/haloydev/deploybot/internal/rancher"
	"github.com/haloydev/deploybot/internal/ratelimit"
	"github.com/haloydev/deploybot/internal/upstream"
	"github.com/haloydev/deploybot/internal/verify"
	"github.com/redis/go-redis/v9"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *deploy.Orchestrator
	metrics      *metrics.Registry
	redis        *redis.Client
	// replyClient posts to Slack response URLs.
	replyClient *http.Client
}

// loadConfig reads and validates the config found at path.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, file, err := configloader.Load(config.ConfigPath(path))
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, file, fmt.Errorf("invalid config %s: %w", file, err)
	}
	return cfg, file, nil
}

// newApp connects the collaborators described by cfg. Every message goes to
// the logger, the configured Slack webhook and the extra sinks.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, sinks ...deploytypes.NotificationSink) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.connect(ctx, sinks); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, sinks []deploytypes.NotificationSink) error {
	cfg, logger := a.cfg, a.logger
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}
	if cfg.Metrics.IsEnabled() {
		a.metrics = metrics.NewRegistry()
	}

	timeout := cfg.HTTP.GetTimeout()
	a.replyClient = upstream.NewHTTPClient(timeout, nil)

	source, err := a.sourceControl()
	if err != nil {
		return err
	}
	registry := quay.NewClient(quay.Config{
		URL:        cfg.Quay.URL,
		Token:      cfg.Quay.Token,
		Namespace:  cfg.Quay.Namespace,
		HTTPClient: a.throttledClient("quay", cfg.Quay.RequestsPerSecond),
	})
	platform := rancher.NewClient(rancher.Config{
		URL:        cfg.Rancher.URL,
		AccessKey:  cfg.Rancher.AccessKey,
		SecretKey:  cfg.Rancher.SecretKey,
		HTTPClient: a.throttledClient("rancher", cfg.Rancher.RequestsPerSecond),
	})
	environments, err := cfg.Rancher.EnvironmentProjects()
	if err != nil {
		return err
	}

	allSinks := []deploytypes.NotificationSink{notify.NewLogger(logger)}
	if cfg.Slack.WebhookURL != "" {
		allSinks = append(allSinks, notify.NewSlack(cfg.Slack.WebhookURL, a.replyClient))
	}
	sink := notify.NewMulti(logger, append(allSinks, sinks...)...)

	var staff deploytypes.NotificationSink
	if cfg.Staff.WebhookURL != "" {
		staff = notify.NewSlack(cfg.Staff.WebhookURL, a.replyClient)
	}

	allowList, err := a.allowList(ctx)
	if err != nil {
		return err
	}
	locker, err := a.locker()
	if err != nil {
		return err
	}

	a.orchestrator, err = deploy.New(deploy.Deps{
		Gate: permission.NewGate(allowList, sink),
		Planner: verify.Catalog{
			Source:       source,
			Registry:     registry,
			Platform:     platform,
			Repositories: cfg.SourceControl.Repositories,
			Environments: environments,
		},
		Revisions:  platform,
		Dispatcher: dispatch.New(platform),
		Inventory:  platform,
		Sources:    source,
		Images:     registry,
		Locker:     locker,
		Sink:       sink,
		Staff:      staff,
		StaffNames: cfg.Staff.Names,
		Metrics:    a.metrics,
		Logger:     logger,
	})
	return err
}

// sourceClient verifies deploys and answers the source control listings.
type sourceClient interface {
	deploytypes.SourceControl
	deploy.SourceInventory
}

func (a *app) sourceControl() (sourceClient, error) {
	sc := a.cfg.SourceControl
	switch sc.Provider {
	case config.ProviderGitLab:
		return gitlab.NewClient(gitlab.Config{
			URL:        sc.GitLab.URL,
			Token:      sc.GitLab.Token,
			Group:      sc.GitLab.Group,
			HTTPClient: upstream.NewHTTPClient(a.cfg.HTTP.GetTimeout(), nil),
		})
	case config.ProviderGitHub:
		return github.NewClient(github.Config{
			URL:          sc.GitHub.URL,
			Token:        sc.GitHub.Token,
			Organization: sc.GitHub.Organization,
			HTTPClient:   upstream.NewHTTPClient(a.cfg.HTTP.GetTimeout(), nil),
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown source control provider '%s'", deploytypes.ErrMisconfigured, sc.Provider)
	}
}

// throttledClient limits calls to one upstream. With Redis the limit is
// shared by every replica.
func (a *app) throttledClient(name string, rps float64) *http.Client {
	var limiter ratelimit.Limiter
	if a.redis != nil {
		limiter = ratelimit.NewRedisLimiter(a.redis, name, int(math.Ceil(rps)), a.logger)
	} else {
		limiter = ratelimit.NewLocalLimiter(rps, 1)
	}
	return upstream.NewHTTPClient(a.cfg.HTTP.GetTimeout(), ratelimit.NewThrottledTransport(limiter, nil))
}

func (a *app) allowList(ctx context.Context) (permission.AllowList, error) {
	perms := a.cfg.Permissions
	if perms.RedisKey == "" {
		return permission.NewStatic(perms.Allowed), nil
	}
	if a.redis == nil {
		return nil, fmt.Errorf("%w: permissions.redis_key needs redis.url", deploytypes.ErrMisconfigured)
	}
	set := permission.NewRedisSet(a.redis, perms.RedisKey)
	if len(perms.Allowed) > 0 {
		if err := set.Seed(ctx, perms.Allowed...); err != nil {
			return nil, fmt.Errorf("failed to seed allow list: %w", err)
		}
	}
	return set, nil
}

func (a *app) locker() (lock.Locker, error) {
	lc := a.cfg.Lock
	switch lc.Backend {
	case config.LockNone:
		return nil, nil
	case config.LockRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("%w: lock.backend redis needs redis.url", deploytypes.ErrMisconfigured)
		}
		return lock.NewRedis(a.redis, lc.GetTTL(), lc.GetTimeout()), nil
	default:
		return lock.NewMemory(lc.GetTimeout()), nil
	}
}

func (a *app) Close() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
