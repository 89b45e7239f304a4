// Package notify is the notification channel between the metering engine
// and the socket layer: two Redis pub/sub topics carrying per-user
// balance updates and session terminations. Publishes are fire-and-forget;
// subscribers tolerate malformed payloads without dying.
package notify

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TopicCreditUpdate = "credit_update"
	TopicSessionEnd   = "session_end"
)

type creditUpdatePayload struct {
	UserID  int64 `json:"userId"`
	Credits int64 `json:"credits"`
}

type sessionEndPayload struct {
	UserID int64 `json:"userId"`
}

// Publisher pushes engine events onto the channel. A lost publish only
// costs a live notification; clients reconcile by polling on reconnect.
type Publisher struct {
	client *redis.Client
	log    *zap.Logger
}

type PublisherParams struct {
	fx.In

	Client *redis.Client
	Log    *zap.Logger
}

func NewPublisher(p PublisherParams) *Publisher {
	return &Publisher{
		client: p.Client,
		log:    p.Log.Named("notify.publisher"),
	}
}

func (p *Publisher) PublishCreditUpdate(ctx context.Context, userID int64, credits int64) {
	p.publish(ctx, TopicCreditUpdate, creditUpdatePayload{UserID: userID, Credits: credits})
}

func (p *Publisher) PublishSessionEnd(ctx context.Context, userID int64) {
	p.publish(ctx, TopicSessionEnd, sessionEndPayload{UserID: userID})
}

func (p *Publisher) publish(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		p.log.Warn("publish event", zap.String("topic", topic), zap.Error(err))
	}
}
