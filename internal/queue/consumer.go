package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/dermascan/internal/models"
)

// ScanHandler processes one settled scan. A returned error asks for redelivery.
type ScanHandler func(ctx context.Context, rec *models.ScanRecord) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeScans starts a durable consumer on the SCANS stream and hands each
// record to handler until ctx is done.
func (c *Consumer) ConsumeScans(ctx context.Context, consumerName string, handler ScanHandler) error {
	stream, err := c.js.Stream(ctx, ScansStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", ScansStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    5,
		FilterSubject: ScansSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch scans error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for msg := range batch.Messages() {
				handleMessage(ctx, msg, handler)
			}
		}
	}()

	slog.Info("scan consumer started", "consumer", consumerName)
	return nil
}

func handleMessage(ctx context.Context, msg jetstream.Msg, handler ScanHandler) {
	var rec models.ScanRecord
	if err := json.Unmarshal(msg.Data(), &rec); err != nil {
		// Malformed payloads never become valid; drop them.
		slog.Error("decode scan message", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := handler(ctx, &rec); err != nil {
		attempt := uint64(1)
		if meta, mErr := msg.Metadata(); mErr == nil {
			attempt = meta.NumDelivered
		}
		slog.Error("process scan error", "scan_id", rec.ID, "attempt", attempt, "error", err)
		_ = msg.NakWithDelay(redeliveryDelay(attempt))
		return
	}
	_ = msg.Ack()
}

// redeliveryDelay backs off linearly so a store outage is not hammered.
func redeliveryDelay(attempt uint64) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(attempt) * 2 * time.Second
}

func (c *Consumer) Close() {
	c.nc.Close()
}
