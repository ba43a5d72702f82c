package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
)

const gradingChannel = "skillyhead:grading"

type relayEnvelope struct {
	Origin string           `json:"origin"`
	Event  app.GradingEvent `json:"event"`
}

// GradingRelay forwards grading events between instances over a Redis
// channel, so a websocket subscriber on one node sees grades posted on another.
type GradingRelay struct {
	client *redis.Client
	feed   *app.GradingFeed
	log    *zap.Logger
	origin string
}

func NewGradingRelay(client *redis.Client, feed *app.GradingFeed, log *zap.Logger) *GradingRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &GradingRelay{client: client, feed: feed, log: log, origin: uuid.NewString()}
}

// Start subscribes to the channel, installs the relay on the feed and
// returns once the subscription is live. Delivery stops when ctx ends.
func (r *GradingRelay) Start(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, gradingChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	r.feed.SetRelay(func(ev app.GradingEvent) { r.forward(context.WithoutCancel(ctx), ev) })

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn("bad grading relay payload", zap.Error(err))
					continue
				}
				if env.Origin == r.origin {
					continue
				}
				r.feed.Deliver(env.Event)
			}
		}
	}()
	return nil
}

func (r *GradingRelay) forward(ctx context.Context, ev app.GradingEvent) {
	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev})
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, gradingChannel, data).Err(); err != nil {
		r.log.Warn("grading relay publish failed", zap.Error(err), zap.String("assessment_id", ev.AssessmentID))
	}
}
