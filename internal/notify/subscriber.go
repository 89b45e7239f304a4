package notify

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sink receives decoded channel events. The socket fan-out layer is the
// production implementation.
type Sink interface {
	CreditUpdate(userID int64, credits int64)
	SessionEnd(userID int64)
}

// Subscriber runs the channel consumption loop. Malformed payloads are
// logged and dropped; the loop only exits on context cancellation.
type Subscriber struct {
	client *redis.Client
	sink   Sink
	log    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type SubscriberParams struct {
	fx.In

	Client *redis.Client
	Sink   Sink
	Log    *zap.Logger
}

func NewSubscriber(p SubscriberParams) *Subscriber {
	return &Subscriber{
		client: p.Client,
		sink:   p.Sink,
		log:    p.Log.Named("notify.subscriber"),
	}
}

// Start subscribes to both topics and consumes until Stop.
func (s *Subscriber) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	sub := s.client.Subscribe(ctx, TopicCreditUpdate, TopicSessionEnd)
	go s.run(ctx, sub)
}

func (s *Subscriber) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Subscriber) run(ctx context.Context, sub *redis.PubSub) {
	defer close(s.done)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) dispatch(topic string, payload []byte) {
	switch topic {
	case TopicCreditUpdate:
		var event creditUpdatePayload
		if err := json.Unmarshal(payload, &event); err != nil || event.UserID == 0 {
			s.log.Warn("dropping malformed credit_update", zap.ByteString("payload", payload), zap.Error(err))
			return
		}
		s.sink.CreditUpdate(event.UserID, event.Credits)
	case TopicSessionEnd:
		var event sessionEndPayload
		if err := json.Unmarshal(payload, &event); err != nil || event.UserID == 0 {
			s.log.Warn("dropping malformed session_end", zap.ByteString("payload", payload), zap.Error(err))
			return
		}
		s.sink.SessionEnd(event.UserID)
	}
}

func registerHooks(lc fx.Lifecycle, sub *Subscriber) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			sub.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			sub.Stop()
			return nil
		},
	})
}

var Module = fx.Module("notify",
	fx.Provide(NewPublisher),
	fx.Provide(NewSubscriber),
	fx.Invoke(registerHooks),
)
