package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"go.opentelemetry.io/otel/attribute"
)

const sweepBatchLimit = 100

// BatchConsumer completes image batches once every image has reported, and
// periodically sweeps batches whose reports were lost or which ran out of time.
type BatchConsumer struct {
	channel   deliverySource
	completer batchCompleter
	cfg       *config.EnvConfig
	logger    *infra.LoggerClient
}

func NewBatchConsumer(channel *amqp.Channel, inf *infra.Infra, completer batchCompleter, cfg *config.Config) *BatchConsumer {
	return &BatchConsumer{
		channel:   channel,
		completer: completer,
		cfg:       cfg.EnvConfig,
		logger:    inf.Logger,
	}
}

func (c *BatchConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.BatchProgressQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register batch progress consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Batch Consumer] Started consuming queue: %s", produce.BatchProgressQueue)

	consumeWith(ctx, msgs, 1, c.handleProgress, func(reason string) {
		c.logger.InfoWithContextf(ctx, "[Batch Consumer] Worker stopped: %s", reason)
	})
	go c.sweep(ctx)
	return nil
}

func (c *BatchConsumer) handleProgress(ctx context.Context, msg amqp.Delivery) {
	if !produce.VerifyDelivery(c.cfg.PrivateKey, msg) {
		c.logger.ErrorWithContextf(ctx, nil, "[Batch Consumer] Rejecting message %s with invalid signature", msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}

	var progress produce.BatchProgressMessage
	if err := json.Unmarshal(msg.Body, &progress); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Batch Consumer] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	ctx, span := tracer.Start(ctx, "image.batch_gate")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", progress.BatchID.String()),
		attribute.String("image.filename", progress.Filename),
		attribute.String("image.status", string(progress.Status)),
	)

	result, err := c.completer.CompleteBatch(ctx, progress.BatchID)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("batch.status", string(result.Status)))
		_ = msg.Ack(false)
	case errors.Is(err, entity.ErrEntityNotFound):
		c.logger.WarningWithContextf(ctx, "[Batch Consumer] Dropping progress for unknown batch %s", progress.BatchID)
		_ = msg.Nack(false, false)
	case msg.Redelivered:
		// the sweeper picks the batch up again
		c.logger.ErrorWithContextf(ctx, err, "[Batch Consumer] Failed to complete batch %s twice, leaving it to the sweeper: %v", progress.BatchID, err)
		_ = msg.Nack(false, false)
	default:
		span.RecordError(err)
		c.logger.ErrorWithContextf(ctx, err, "[Batch Consumer] Failed to complete batch %s, requeueing: %v", progress.BatchID, err)
		_ = msg.Nack(false, true)
	}
}

func (c *BatchConsumer) sweep(ctx context.Context) {
	interval := c.cfg.Pipeline.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoWithContextf(ctx, "[Batch Consumer] Sweeper stopped")
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *BatchConsumer) sweepOnce(ctx context.Context) {
	n, err := c.completer.SweepBatches(ctx, sweepBatchLimit)
	if err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Batch Consumer] Sweep failed: %v", err)
		return
	}
	if n > 0 {
		c.logger.InfoWithContextf(ctx, "[Batch Consumer] Sweep settled %d batch(es)", n)
	}
}
