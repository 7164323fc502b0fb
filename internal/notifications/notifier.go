package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/google/uuid"
)

const defaultPublishTimeout = 10 * time.Second

// Type names a user-facing notification.
type Type string

const (
	TypeStuckFundsRequest Type = "support.stuck_funds"
	TypeReversalReview    Type = "bucket.reversal_review"
	TypeBucketCompleted   Type = "bucket.completed"
	TypeBucketCollected   Type = "bucket.collected"
	TypeBucketInvite      Type = "bucket.invite"
)

// Notification is the message handed to the delivery pipeline (email, push).
type Notification struct {
	ID         uuid.UUID      `json:"id"`
	Type       Type           `json:"type"`
	Recipients []string       `json:"recipients"`
	BucketID   *uuid.UUID     `json:"bucket_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher delivers a notification to the downstream pipeline.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

// PubSubPublisher publishes notifications as JSON messages on a Pub/Sub topic.
type PubSubPublisher struct {
	topic   topicPublisher
	timeout time.Duration
}

// NewPubSubPublisher wraps a Pub/Sub topic publisher.
func NewPubSubPublisher(p *gcppubsub.Publisher) (*PubSubPublisher, error) {
	if p == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubPublisher{topic: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"notification_id":   n.ID.String(),
			"notification_type": string(n.Type),
			"occurred_at":       n.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.topic.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil result")
	}
	_, err = result.Get(publishCtx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

// LogPublisher only logs notifications. Used when Pub/Sub is not configured.
type LogPublisher struct {
	logg *logger.Logger
}

func NewLogPublisher(logg *logger.Logger) *LogPublisher {
	return &LogPublisher{logg: logg}
}

func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	if p.logg != nil {
		ctx = p.logg.WithFields(ctx, map[string]any{
			"notification_type": n.Type,
			"recipients":        len(n.Recipients),
		})
		p.logg.Info(ctx, "notification suppressed (no publisher configured)")
	}
	return nil
}

// Dispatcher sends notifications in the background. Failures are logged and
// never reach the caller.
type Dispatcher struct {
	publisher Publisher
	logg      *logger.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(publisher Publisher, logg *logger.Logger) *Dispatcher {
	if publisher == nil {
		publisher = NewLogPublisher(logg)
	}
	return &Dispatcher{publisher: publisher, logg: logg, now: time.Now}
}

// Notify schedules n for delivery and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if d == nil || len(n.Recipients) == 0 {
		return
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = d.now().UTC()
	}

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.publisher.Publish(bg, n); err != nil && d.logg != nil {
			logCtx := d.logg.WithFields(bg, map[string]any{
				"notification_id":   n.ID.String(),
				"notification_type": n.Type,
			})
			d.logg.Error(logCtx, "notification publish failed", err)
		}
	}()
}

// Wait blocks until all scheduled notifications finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
