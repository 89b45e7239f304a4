// Package registry implements the active-session registry: a shared,
// crash-tolerant map of user id to live session handle. The presence of a
// handle, not any in-process timer, is the liveness predicate for
// metering; every tick re-checks it before acting.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyActiveSession = "active_session:%d"

// Handle records that a user currently has a live metered session.
type Handle struct {
	SessionID int64 `json:"sessionId"`
	StartedAt int64 `json:"startedAt"`
}

type Registry struct {
	client *redis.Client
	log    *zap.Logger
}

type Params struct {
	fx.In

	Client *redis.Client
	Log    *zap.Logger
}

func New(p Params) *Registry {
	return &Registry{
		client: p.Client,
		log:    p.Log.Named("registry"),
	}
}

func (r *Registry) Put(ctx context.Context, userID int64, handle Handle) error {
	payload, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(userID), payload, 0).Err()
}

// Get returns the handle for the user, or nil when no session is active.
// An unparseable payload is treated as "no active session", never as a
// fatal error.
func (r *Registry) Get(ctx context.Context, userID int64) (*Handle, error) {
	raw, err := r.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	handle, ok := parseHandle(raw)
	if !ok {
		r.log.Warn("unparseable session handle, treating as inactive",
			zap.Int64("user_id", userID))
		return nil, nil
	}
	return handle, nil
}

func (r *Registry) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, key(userID)).Err()
}

// parseHandle reads the structured payload first and falls back to the
// legacy bare-integer session id format.
func parseHandle(raw string) (*Handle, bool) {
	var handle Handle
	if err := json.Unmarshal([]byte(raw), &handle); err == nil && handle.SessionID != 0 {
		return &handle, true
	}
	sessionID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || sessionID == 0 {
		return nil, false
	}
	return &Handle{SessionID: sessionID}, true
}

func key(userID int64) string {
	return fmt.Sprintf(keyActiveSession, userID)
}

var Module = fx.Module("registry",
	fx.Provide(New),
)
