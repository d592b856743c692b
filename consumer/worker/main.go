package worker

import (
	"context"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/utils"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/tnqbao/gau-property-media/consumer/worker")

// deliverySource is the consuming half of an AMQP channel.
type deliverySource interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type stagingReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetFromBatch(ctx context.Context, batchKey, filename string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeleteKeyInBatch(ctx context.Context, batchKey, filename string) error
}

type imageTranscoder interface {
	Transcode(raw []byte, filename string, bound config.Bound) ([]byte, error)
}

type imageTracker interface {
	ImageStatus(ctx context.Context, batchID uuid.UUID, filename string) (entity.BatchStatus, error)
	MarkImageStatus(ctx context.Context, batchID uuid.UUID, filename string, status entity.BatchStatus, attempts int, lastErr string) error
}

type progressPublisher interface {
	PublishBatchProgress(ctx context.Context, msg produce.BatchProgressMessage) error
}

type batchCompleter interface {
	CompleteBatch(ctx context.Context, batchID uuid.UUID) (*repository.FinalizeResult, error)
	SweepBatches(ctx context.Context, limit int) (int, error)
}

func retryPolicy(cfg *config.EnvConfig) utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxRetries:      cfg.Pipeline.MaxRetries,
		InitialDelay:    cfg.Pipeline.RetryInitialDelay,
		MaxDelay:        cfg.Pipeline.RetryMaxDelay,
		BackoffStrategy: utils.BackoffExponential,
		JitterFactor:    0.25,
	}
}

// consumeWith runs workers goroutines over one queue until ctx is done or the channel closes.
func consumeWith(ctx context.Context, msgs <-chan amqp.Delivery, workers int, handle func(context.Context, amqp.Delivery), onStop func(reason string)) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					onStop("shutdown")
					return
				case msg, ok := <-msgs:
					if !ok {
						onStop("channel closed")
						return
					}
					handle(ctx, msg)
				}
			}
		}()
	}
}
