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
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ImageConsumer transcodes staged uploads and pushes them to object storage.
type ImageConsumer struct {
	channel    deliverySource
	store      stagingReader
	storage    infra.ObjectStorage
	transcoder imageTranscoder
	tracker    imageTracker
	progress   progressPublisher
	cfg        *config.EnvConfig
	logger     *infra.LoggerClient
	metrics    *infra.PipelineMetrics
	policy     utils.RetryPolicy
	workers    int
}

func NewImageConsumer(channel *amqp.Channel, inf *infra.Infra, repo *repository.Repository, cfg *config.Config) *ImageConsumer {
	return &ImageConsumer{
		channel:    channel,
		store:      inf.Redis,
		storage:    inf.Storage,
		transcoder: inf.Transcoder,
		tracker:    repo.ImageBatchRepo,
		progress:   inf.Produce.ImageService,
		cfg:        cfg.EnvConfig,
		logger:     inf.Logger,
		metrics:    inf.Telemetry.Metrics,
		policy:     retryPolicy(cfg.EnvConfig),
		workers:    cfg.EnvConfig.RabbitMQ.Prefetch,
	}
}

func (c *ImageConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.TranscodeQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register transcode consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Image Consumer] Started %d workers on queue: %s", c.workers, produce.TranscodeQueue)

	consumeWith(ctx, msgs, c.workers, c.handleTranscode, func(reason string) {
		c.logger.InfoWithContextf(ctx, "[Image Consumer] Worker stopped: %s", reason)
	})
	return nil
}

func (c *ImageConsumer) handleTranscode(ctx context.Context, msg amqp.Delivery) {
	if !produce.VerifyDelivery(c.cfg.PrivateKey, msg) {
		c.logger.ErrorWithContextf(ctx, nil, "[Image Consumer] Rejecting message %s with invalid signature", msg.MessageId)
		c.metrics.TaskDone(ctx, "transcode", "rejected")
		_ = msg.Nack(false, false)
		return
	}

	var task produce.TranscodeTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Failed to unmarshal message: %v", err)
		c.metrics.TaskDone(ctx, "transcode", "rejected")
		_ = msg.Nack(false, false)
		return
	}
	if err := task.Validate(); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Invalid task %s: %v", task.TaskID, err)
		c.metrics.TaskDone(ctx, "transcode", "rejected")
		_ = msg.Nack(false, false)
		return
	}

	ctx, span := tracer.Start(ctx, "image.transcode")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.TaskID),
		attribute.String("batch.id", task.BatchID.String()),
		attribute.String("image.role", string(task.Role)),
		attribute.String("image.filename", task.Filename),
	)

	settings, _ := c.cfg.Role(string(task.Role))

	status, err := c.tracker.ImageStatus(ctx, task.BatchID, task.Filename)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			c.logger.WarningWithContextf(ctx, "[Image Consumer] Dropping task %s: %v", task.TaskID, err)
			_ = msg.Nack(false, false)
			return
		}
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Failed to read status of %s, requeueing: %v", task.Filename, err)
		_ = msg.Nack(false, true)
		return
	}

	if status == entity.BatchStatusUploaded {
		c.logger.InfoWithContextf(ctx, "[Image Consumer] %s%s already uploaded, acknowledging duplicate", task.Directory, task.Filename)
		c.cleanupStaging(ctx, task)
		c.report(ctx, task, entity.BatchStatusUploaded)
		c.metrics.TaskDone(ctx, "transcode", "duplicate")
		_ = msg.Ack(false)
		return
	}

	if err := c.tracker.MarkImageStatus(ctx, task.BatchID, task.Filename, entity.BatchStatusTranscoding, 0, ""); err != nil {
		c.logger.WarningWithContextf(ctx, "[Image Consumer] Failed to mark %s transcoding: %v", task.Filename, err)
	}

	start := time.Now()
	attempts, err := c.policy.Retry(ctx, entity.IsRetryable, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Pipeline.TaskTimeout)
		defer cancel()

		err := c.process(attemptCtx, task, settings)
		if err != nil {
			c.logger.WarningWithContextf(ctx, "[Image Consumer] Attempt %d/%d for %s failed: %v",
				attempt, c.policy.MaxRetries+1, task.Filename, err)
		}
		return err
	})

	switch {
	case err == nil:
		c.metrics.TranscodeObserved(ctx, string(task.Role), time.Since(start))
		if err := c.tracker.MarkImageStatus(ctx, task.BatchID, task.Filename, entity.BatchStatusUploaded, attempts, ""); err != nil {
			c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Uploaded %s but failed to record it, requeueing: %v", task.Filename, err)
			_ = msg.Nack(false, true)
			return
		}
		c.cleanupStaging(ctx, task)
		c.report(ctx, task, entity.BatchStatusUploaded)
		c.metrics.TaskDone(ctx, "transcode", "success")
		c.logger.InfoWithContextf(ctx, "[Image Consumer] Uploaded %s%s%s after %d attempt(s)",
			settings.BaseDir, task.Directory, task.Filename, attempts)
		_ = msg.Ack(false)

	case ctx.Err() != nil:
		c.logger.WarningWithContextf(ctx, "[Image Consumer] Interrupted while processing %s, requeueing", task.Filename)
		_ = msg.Nack(false, true)

	case !entity.IsRetryable(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.fail(ctx, task, attempts, err)
		c.metrics.TaskDone(ctx, "transcode", "failed")
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] %s cannot be processed: %v", task.Filename, err)
		_ = msg.Nack(false, false)

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.fail(ctx, task, attempts, err)
		c.metrics.TaskDone(ctx, "transcode", "exhausted")
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Giving up on %s after %d attempts: %v", task.Filename, attempts, err)
		_ = msg.Ack(false)
	}
}

// process reads the staged bytes, transcodes them and uploads the result. The staged
// copy is left in place so a retry can read it again.
func (c *ImageConsumer) process(ctx context.Context, task produce.TranscodeTask, settings config.RoleSettings) error {
	var (
		raw []byte
		err error
	)
	if task.BatchKey != "" {
		raw, err = c.store.GetFromBatch(ctx, task.BatchKey, task.Filename)
	} else {
		raw, err = c.store.Get(ctx, task.StagingKey)
	}
	if err != nil {
		return err
	}

	out, err := c.transcoder.Transcode(raw, task.Filename, settings.Bound)
	if err != nil {
		return err
	}

	path := entity.ObjectPath(settings.BaseDir, task.Directory, task.Filename)
	return c.storage.Upload(ctx, out, path, infra.ContentTypeFor(task.Filename))
}

func (c *ImageConsumer) fail(ctx context.Context, task produce.TranscodeTask, attempts int, cause error) {
	if err := c.tracker.MarkImageStatus(ctx, task.BatchID, task.Filename, entity.BatchStatusFailed, attempts, cause.Error()); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Image Consumer] Failed to mark %s failed: %v", task.Filename, err)
	}
	c.report(ctx, task, entity.BatchStatusFailed)
}

func (c *ImageConsumer) cleanupStaging(ctx context.Context, task produce.TranscodeTask) {
	var err error
	if task.BatchKey != "" {
		err = c.store.DeleteKeyInBatch(ctx, task.BatchKey, task.Filename)
	} else {
		err = c.store.Delete(ctx, task.StagingKey)
	}
	if err != nil {
		c.logger.WarningWithContextf(ctx, "[Image Consumer] Failed to delete staged copy of %s: %v", task.Filename, err)
	}
}

// report tells the batch gate about an image outcome. A lost report is recovered by the sweeper.
func (c *ImageConsumer) report(ctx context.Context, task produce.TranscodeTask, status entity.BatchStatus) {
	err := c.progress.PublishBatchProgress(ctx, produce.BatchProgressMessage{
		BatchID:  task.BatchID,
		Filename: task.Filename,
		Status:   status,
	})
	if err != nil {
		c.logger.WarningWithContextf(ctx, "[Image Consumer] Failed to report %s for %s: %v", status, task.Filename, err)
	}
}
