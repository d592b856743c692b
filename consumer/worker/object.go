package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"github.com/tnqbao/gau-property-media/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type objectDeleter interface {
	DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error
}

// ObjectConsumer removes replaced or orphaned image directories from storage.
type ObjectConsumer struct {
	channel deliverySource
	storage objectDeleter
	cfg     *config.EnvConfig
	logger  *infra.LoggerClient
	metrics *infra.PipelineMetrics
	policy  utils.RetryPolicy
}

func NewObjectConsumer(channel *amqp.Channel, inf *infra.Infra, cfg *config.Config) *ObjectConsumer {
	return &ObjectConsumer{
		channel: channel,
		storage: inf.Storage,
		cfg:     cfg.EnvConfig,
		logger:  inf.Logger,
		metrics: inf.Telemetry.Metrics,
		policy:  retryPolicy(cfg.EnvConfig),
	}
}

func (c *ObjectConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.DeleteBatchQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register delete consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Object Consumer] Started consuming queue: %s", produce.DeleteBatchQueue)

	consumeWith(ctx, msgs, 1, c.handleDeleteBatch, func(reason string) {
		c.logger.InfoWithContextf(ctx, "[Object Consumer] Worker stopped: %s", reason)
	})
	return nil
}

func (c *ObjectConsumer) handleDeleteBatch(ctx context.Context, msg amqp.Delivery) {
	if !produce.VerifyDelivery(c.cfg.PrivateKey, msg) {
		c.logger.ErrorWithContextf(ctx, nil, "[Object Consumer] Rejecting message %s with invalid signature", msg.MessageId)
		c.metrics.TaskDone(ctx, "delete_batch", "rejected")
		_ = msg.Nack(false, false)
		return
	}

	var task produce.DeleteBatchTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Object Consumer] Failed to unmarshal message: %v", err)
		c.metrics.TaskDone(ctx, "delete_batch", "rejected")
		_ = msg.Nack(false, false)
		return
	}
	if err := task.Validate(); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Object Consumer] Invalid task %s: %v", task.TaskID, err)
		c.metrics.TaskDone(ctx, "delete_batch", "rejected")
		_ = msg.Nack(false, false)
		return
	}

	ctx, span := tracer.Start(ctx, "image.delete_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.TaskID),
		attribute.String("image.directory", task.BaseDir+task.Directory),
		attribute.Int("image.count", len(task.Filenames)),
	)

	c.logger.InfoWithContextf(ctx, "[Object Consumer] Deleting %d object(s) under %s%s",
		len(task.Filenames), task.BaseDir, task.Directory)

	attempts, err := c.policy.Retry(ctx, entity.IsRetryable, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Pipeline.TaskTimeout)
		defer cancel()
		return c.storage.DeleteBatch(attemptCtx, task.BaseDir, task.Directory, task.Filenames)
	})
	if err == nil {
		c.metrics.TaskDone(ctx, "delete_batch", "success")
		c.logger.InfoWithContextf(ctx, "[Object Consumer] Deleted %s%s after %d attempt(s)", task.BaseDir, task.Directory, attempts)
		_ = msg.Ack(false)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil {
		c.logger.WarningWithContextf(ctx, "[Object Consumer] Interrupted while deleting %s%s, requeueing", task.BaseDir, task.Directory)
		_ = msg.Nack(false, true)
		return
	}

	// One more delivery is allowed before the objects are left for manual cleanup.
	if msg.Redelivered {
		c.metrics.TaskDone(ctx, "delete_batch", "exhausted")
		c.logger.ErrorWithContextf(ctx, err, "[Object Consumer] Giving up deleting %s%s %v: %v",
			task.BaseDir, task.Directory, task.Filenames, err)
		_ = msg.Nack(false, false)
		return
	}

	c.metrics.TaskDone(ctx, "delete_batch", "requeued")
	c.logger.WarningWithContextf(ctx, "[Object Consumer] Failed to delete %s%s, requeueing: %v", task.BaseDir, task.Directory, err)
	_ = msg.Nack(false, true)
}
