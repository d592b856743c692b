package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/utils"
)

const (
	ImageExchange = "image.exchange"

	TranscodeQueue      = "image.transcode"
	TranscodeRoutingKey = "image.transcode"

	DeleteBatchQueue      = "image.delete"
	DeleteBatchRoutingKey = "image.delete"

	// BatchProgressQueue carries per-image completion reports back to the batch gate.
	BatchProgressQueue      = "image.batch_progress"
	BatchProgressRoutingKey = "image.batch_progress"
)

// TranscodeTask asks a worker to transcode one staged image and upload it.
type TranscodeTask struct {
	TaskID      string           `json:"task_id"`
	BatchID     uuid.UUID        `json:"batch_id"`
	Role        entity.ImageRole `json:"role"`
	Directory   string           `json:"directory"`
	Filename    string           `json:"filename"`
	StagingKey  string           `json:"staging_key"`
	BatchKey    string           `json:"batch_key,omitempty"` // set when the blob lives in a staging hash
	ContentType string           `json:"content_type"`
	Timestamp   int64            `json:"timestamp"`
}

func (t TranscodeTask) Validate() error {
	switch {
	case t.BatchID == uuid.Nil:
		return fmt.Errorf("%w: batch_id is required", entity.ErrInvalidTask)
	case !t.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", entity.ErrInvalidTask, t.Role)
	case t.Directory == "" || !strings.HasSuffix(t.Directory, "/"):
		return fmt.Errorf("%w: directory must end with '/'", entity.ErrInvalidTask)
	case t.Filename == "" || strings.Contains(t.Filename, "/"):
		return fmt.Errorf("%w: invalid filename %q", entity.ErrInvalidTask, t.Filename)
	case t.StagingKey == "" && t.BatchKey == "":
		return fmt.Errorf("%w: staging_key or batch_key is required", entity.ErrInvalidTask)
	}
	return nil
}

// DeleteBatchTask asks a worker to delete {BaseDir}{Directory}{filename} for every filename.
type DeleteBatchTask struct {
	TaskID    string           `json:"task_id"`
	Role      entity.ImageRole `json:"role"`
	BaseDir   string           `json:"base_dir"`
	Directory string           `json:"directory"`
	Filenames []string         `json:"filenames"`
	Timestamp int64            `json:"timestamp"`
}

func (t DeleteBatchTask) Validate() error {
	switch {
	case t.Directory == "" || !strings.HasSuffix(t.Directory, "/"):
		return fmt.Errorf("%w: directory must end with '/'", entity.ErrInvalidTask)
	case strings.Contains(t.Directory, ".."):
		return fmt.Errorf("%w: directory cannot contain '..'", entity.ErrInvalidTask)
	}
	for _, f := range t.Filenames {
		if f == "" || strings.Contains(f, "/") {
			return fmt.Errorf("%w: invalid filename %q", entity.ErrInvalidTask, f)
		}
	}
	return nil
}

// BatchProgressMessage reports the final state of one image of a batch.
type BatchProgressMessage struct {
	BatchID   uuid.UUID          `json:"batch_id"`
	Filename  string             `json:"filename"`
	Status    entity.BatchStatus `json:"status"`
	Timestamp int64              `json:"timestamp"`
}

// TaskHandle identifies an enqueued task.
type TaskHandle struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ImageProduceService publishes image pipeline tasks
type ImageProduceService struct {
	channel publisher
	secret  string
}

// InitImageProduceService declares the image exchange and queues
func InitImageProduceService(channel *amqp.Channel, secret string) *ImageProduceService {
	err := channel.ExchangeDeclare(
		ImageExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Image exchange: " + err.Error())
	}

	bindings := map[string]string{
		TranscodeQueue:     TranscodeRoutingKey,
		DeleteBatchQueue:   DeleteBatchRoutingKey,
		BatchProgressQueue: BatchProgressRoutingKey,
	}
	for queue, routingKey := range bindings {
		_, err = channel.QueueDeclare(
			queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			panic("Failed to declare queue " + queue + ": " + err.Error())
		}

		err = channel.QueueBind(
			queue,
			routingKey,
			ImageExchange,
			false,
			nil,
		)
		if err != nil {
			panic("Failed to bind queue " + queue + ": " + err.Error())
		}
	}

	return NewImageProduceService(channel, secret)
}

// NewImageProduceService wraps an already configured publisher.
func NewImageProduceService(channel publisher, secret string) *ImageProduceService {
	return &ImageProduceService{
		channel: channel,
		secret:  secret,
	}
}

// EnqueueTranscode publishes a transcode-and-upload task.
func (s *ImageProduceService) EnqueueTranscode(ctx context.Context, task TranscodeTask) (TaskHandle, error) {
	if err := task.Validate(); err != nil {
		return TaskHandle{}, err
	}
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	task.Timestamp = time.Now().Unix()

	if err := s.publish(ctx, TranscodeRoutingKey, task.TaskID, task); err != nil {
		return TaskHandle{}, err
	}
	return TaskHandle{TaskID: task.TaskID, Queue: TranscodeQueue}, nil
}

// EnqueueDeleteBatch publishes a delete task for a set of objects in one directory.
func (s *ImageProduceService) EnqueueDeleteBatch(ctx context.Context, task DeleteBatchTask) (TaskHandle, error) {
	if err := task.Validate(); err != nil {
		return TaskHandle{}, err
	}
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	task.Timestamp = time.Now().Unix()

	if err := s.publish(ctx, DeleteBatchRoutingKey, task.TaskID, task); err != nil {
		return TaskHandle{}, err
	}
	return TaskHandle{TaskID: task.TaskID, Queue: DeleteBatchQueue}, nil
}

// PublishBatchProgress reports an image outcome to the batch gate.
func (s *ImageProduceService) PublishBatchProgress(ctx context.Context, msg BatchProgressMessage) error {
	if msg.BatchID == uuid.Nil {
		return fmt.Errorf("%w: batch_id is required", entity.ErrInvalidTask)
	}
	msg.Timestamp = time.Now().Unix()
	return s.publish(ctx, BatchProgressRoutingKey, msg.BatchID.String(), msg)
}

func (s *ImageProduceService) publish(ctx context.Context, routingKey, messageID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", routingKey, err)
	}

	headers := amqp.Table{}
	if s.secret != "" {
		ts := time.Now().Unix()
		headers[utils.TaskTimestampHeader] = strconv.FormatInt(ts, 10)
		headers[utils.TaskSignatureHeader] = utils.SignTask(s.secret, routingKey, ts, body)
	}

	err = s.channel.PublishWithContext(
		ctx,
		ImageExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Headers:      headers,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s message: %w", routingKey, err)
	}

	return nil
}

// VerifyDelivery checks the signature headers written by publish. With an empty secret
// every delivery is accepted.
func VerifyDelivery(secret string, msg amqp.Delivery) bool {
	if secret == "" {
		return true
	}
	sig, _ := msg.Headers[utils.TaskSignatureHeader].(string)
	ts, _ := msg.Headers[utils.TaskTimestampHeader].(string)
	return utils.VerifyTask(secret, msg.RoutingKey, ts, msg.Body, sig)
}
