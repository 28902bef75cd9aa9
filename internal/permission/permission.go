// Package permission decides which actors may run commands.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/redis/go-redis/v9"
)

type AllowList interface {
	Contains(ctx context.Context, actor string) (bool, error)
}

// Gate checks actors against an allow-list and tells denied actors why
// nothing happened.
type Gate struct {
	allowList AllowList
	sink      deploytypes.NotificationSink
}

func NewGate(allowList AllowList, sink deploytypes.NotificationSink) *Gate {
	return &Gate{allowList: allowList, sink: sink}
}

// WithReplies returns a gate on the same allow-list that also sends denials
// to replies.
func (g *Gate) WithReplies(logger *slog.Logger, replies ...deploytypes.NotificationSink) *Gate {
	return &Gate{
		allowList: g.allowList,
		sink:      notify.NewMulti(logger, append([]deploytypes.NotificationSink{g.sink}, replies...)...),
	}
}

// Authorize reports whether actor may run action. An empty actor is denied
// without a lookup. A denial sends one notification; a lookup failure is
// returned as is and sends none.
func (g *Gate) Authorize(ctx context.Context, actor string, action string) (bool, error) {
	allowed := false
	if actor != "" {
		var err error
		allowed, err = g.allowList.Contains(ctx, actor)
		if err != nil {
			return false, fmt.Errorf("permission lookup: %w", err)
		}
	}
	if allowed {
		return true, nil
	}

	if g.sink != nil {
		// Delivery failures are logged by the sink; the denial stands either way.
		_ = g.sink.Notify(ctx, actor, DeniedMessage(actor, action), deploytypes.SeverityError)
	}
	return false, nil
}

func DeniedMessage(actor, action string) string {
	if actor == "" {
		return fmt.Sprintf("You're not allowed to perform %s!", action)
	}
	return fmt.Sprintf("@%s you're not allowed to perform %s!", actor, action)
}

// Static is an allow-list fixed at startup. Names match exactly.
type Static []string

func NewStatic(names []string) Static {
	out := make(Static, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (s Static) Contains(_ context.Context, actor string) (bool, error) {
	return slices.Contains(s, actor), nil
}

// RedisSet reads the allow-list from a Redis set so that access can change
// without a restart.
type RedisSet struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSet(client redis.UniversalClient, key string) *RedisSet {
	return &RedisSet{client: client, key: key}
}

func (r *RedisSet) Contains(ctx context.Context, actor string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, actor).Result()
}

// Seed adds names to the set.
func (r *RedisSet) Seed(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	members := make([]any, 0, len(names))
	for _, n := range names {
		members = append(members, n)
	}
	return r.client.SAdd(ctx, r.key, members...).Err()
}
