package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/utils"
)

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack *fakeAcknowledger, routingKey string, payload interface{}) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   routingKey,
		Body:         body,
		Headers:      amqp.Table{},
	}
}

func signed(msg amqp.Delivery, secret string) amqp.Delivery {
	ts := time.Now().Unix()
	msg.Headers[utils.TaskTimestampHeader] = strconv.FormatInt(ts, 10)
	msg.Headers[utils.TaskSignatureHeader] = utils.SignTask(secret, msg.RoutingKey, ts, msg.Body)
	return msg
}

type fakeStaging struct {
	mu      sync.Mutex
	keys    map[string][]byte
	batches map[string]map[string][]byte
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{keys: map[string][]byte{}, batches: map[string]map[string][]byte{}}
}

func (s *fakeStaging) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrStagingKeyNotFound, key)
	}
	return data, nil
}

func (s *fakeStaging) GetFromBatch(_ context.Context, batchKey, filename string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.batches[batchKey][filename]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", entity.ErrStagingKeyNotFound, batchKey, filename)
	}
	return data, nil
}

func (s *fakeStaging) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *fakeStaging) DeleteKeyInBatch(_ context.Context, batchKey, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches[batchKey], filename)
	return nil
}

type trackedImage struct {
	status   entity.BatchStatus
	attempts int
	lastErr  string
}

type fakeTracker struct {
	mu     sync.Mutex
	images map[string]*trackedImage
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{images: map[string]*trackedImage{}}
}

func (f *fakeTracker) add(batchID uuid.UUID, filename string, status entity.BatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[batchID.String()+"/"+filename] = &trackedImage{status: status}
}

func (f *fakeTracker) get(batchID uuid.UUID, filename string) trackedImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.images[batchID.String()+"/"+filename]
}

func (f *fakeTracker) ImageStatus(_ context.Context, batchID uuid.UUID, filename string) (entity.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[batchID.String()+"/"+filename]
	if !ok {
		return "", entity.ErrEntityNotFound
	}
	return img.status, nil
}

func (f *fakeTracker) MarkImageStatus(_ context.Context, batchID uuid.UUID, filename string, status entity.BatchStatus, attempts int, lastErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[batchID.String()+"/"+filename]
	if !ok {
		return entity.ErrEntityNotFound
	}
	if img.status == entity.BatchStatusUploaded {
		return nil
	}
	img.status = status
	img.attempts = attempts
	img.lastErr = lastErr
	return nil
}

type fakeProgress struct {
	mu       sync.Mutex
	messages []produce.BatchProgressMessage
}

func (p *fakeProgress) PublishBatchProgress(_ context.Context, msg produce.BatchProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// flakyStorage fails the first failures calls to Upload and DeleteBatch.
type flakyStorage struct {
	*infra.LocalStorage
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStorage) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("%w: connection reset", entity.ErrUpload)
	}
	return nil
}

func (f *flakyStorage) Upload(ctx context.Context, data []byte, path, contentType string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.LocalStorage.Upload(ctx, data, path, contentType)
}

func (f *flakyStorage) DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.LocalStorage.DeleteBatch(ctx, baseDir, directory, filenames)
}

type fakeCompleter struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	err    error
	sweeps int
}

func (f *fakeCompleter) CompleteBatch(_ context.Context, batchID uuid.UUID) (*repository.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, batchID)
	if f.err != nil {
		return nil, f.err
	}
	return &repository.FinalizeResult{
		Batch:  &entity.ImageBatch{ID: batchID},
		Status: entity.BatchStatusTranscoding,
	}, nil
}

func (f *fakeCompleter) SweepBatches(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0, nil
}

var errBroker = errors.New("broker unavailable")

func testConfig(t *testing.T) *config.EnvConfig {
	t.Helper()
	cfg := config.LoadEnvConfig()
	cfg.PrivateKey = ""
	cfg.Pipeline.TaskTimeout = 5 * time.Second
	return cfg
}

func testPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxRetries:      3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffStrategy: utils.BackoffExponential,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func newLocalStorage(t *testing.T) *infra.LocalStorage {
	t.Helper()
	storage, err := infra.NewLocalStorage(t.TempDir(), "/static")
	require.NoError(t, err)
	return storage
}
