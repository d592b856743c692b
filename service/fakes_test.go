package service

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"github.com/tnqbao/gau-property-media/repository"
)

type fakeStore struct {
	mu      sync.Mutex
	puts    map[string][]byte
	batches map[string]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: map[string][]byte{}, batches: map[string]map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[key] = data
	return nil
}

func (s *fakeStore) PutBatch(_ context.Context, batchKey string, files map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchKey] = files
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.puts, key)
	return nil
}

func (s *fakeStore) DeleteKeyInBatch(_ context.Context, batchKey, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches[batchKey], filename)
	if len(s.batches[batchKey]) == 0 {
		delete(s.batches, batchKey)
	}
	return nil
}

func (s *fakeStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts) + len(s.batches)
}

type fakeDispatcher struct {
	mu         sync.Mutex
	transcodes []produce.TranscodeTask
	deletes    []produce.DeleteBatchTask
	failAfter  int

	// failDeletes is how many upcoming EnqueueDeleteBatch calls fail.
	failDeletes int
}

func (d *fakeDispatcher) EnqueueTranscode(_ context.Context, task produce.TranscodeTask) (produce.TaskHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAfter > 0 && len(d.transcodes) >= d.failAfter {
		return produce.TaskHandle{}, errors.New("broker unavailable")
	}
	if err := task.Validate(); err != nil {
		return produce.TaskHandle{}, err
	}
	d.transcodes = append(d.transcodes, task)
	return produce.TaskHandle{TaskID: uuid.NewString(), Queue: produce.TranscodeQueue}, nil
}

func (d *fakeDispatcher) EnqueueDeleteBatch(_ context.Context, task produce.DeleteBatchTask) (produce.TaskHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDeletes > 0 {
		d.failDeletes--
		return produce.TaskHandle{}, errors.New("broker unavailable")
	}
	if err := task.Validate(); err != nil {
		return produce.TaskHandle{}, err
	}
	d.deletes = append(d.deletes, task)
	return produce.TaskHandle{TaskID: uuid.NewString(), Queue: produce.DeleteBatchQueue}, nil
}

type manifestKey struct {
	role  entity.ImageRole
	owner uuid.UUID
}

type fakeManifests struct {
	mu      sync.Mutex
	current map[manifestKey][]byte
}

func newFakeManifests() *fakeManifests {
	return &fakeManifests{current: map[manifestKey][]byte{}}
}

func (m *fakeManifests) set(role entity.ImageRole, owner uuid.UUID, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[manifestKey{role, owner}] = []byte(raw)
}

func (m *fakeManifests) ReadManifest(_ context.Context, role entity.ImageRole, owner uuid.UUID) (entity.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.current[manifestKey{role, owner}]
	if !ok {
		return entity.Manifest{}, entity.ErrEntityNotFound
	}
	return entity.ParseManifest(raw)
}

func (m *fakeManifests) PersistManifest(_ context.Context, role entity.ImageRole, owner uuid.UUID, manifest entity.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.current[manifestKey{role, owner}]; !ok {
		return entity.ErrEntityNotFound
	}
	raw, err := manifest.MarshalLegacy()
	if err != nil {
		return err
	}
	m.current[manifestKey{role, owner}] = raw
	return nil
}

func (m *fakeManifests) ClearManifest(ctx context.Context, role entity.ImageRole, owner uuid.UUID) (entity.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.current[manifestKey{role, owner}]
	if !ok {
		return entity.Manifest{}, entity.ErrEntityNotFound
	}
	previous, err := entity.ParseManifest(raw)
	if err != nil {
		return entity.Manifest{}, err
	}
	m.current[manifestKey{role, owner}] = []byte("[]")
	return previous, nil
}

// fakeBatches mimics the gate: a batch publishes once every image is uploaded.
type fakeBatches struct {
	mu        sync.Mutex
	manifests *fakeManifests
	batches   map[uuid.UUID]*entity.ImageBatch
	uploaded  map[uuid.UUID]map[string]bool
}

func newFakeBatches(manifests *fakeManifests) *fakeBatches {
	return &fakeBatches{
		manifests: manifests,
		batches:   map[uuid.UUID]*entity.ImageBatch{},
		uploaded:  map[uuid.UUID]map[string]bool{},
	}
}

func (b *fakeBatches) CreateWithImages(_ context.Context, batch *entity.ImageBatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches[batch.ID] = batch
	b.uploaded[batch.ID] = map[string]bool{}
	return nil
}

func (b *fakeBatches) markUploaded(id uuid.UUID, filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploaded[id][filename] = true
}

func (b *fakeBatches) Finalize(ctx context.Context, id uuid.UUID) (*repository.FinalizeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.batches[id]
	if !ok {
		return nil, entity.ErrEntityNotFound
	}
	published, err := batch.Manifest()
	if err != nil {
		return nil, err
	}
	result := &repository.FinalizeResult{Batch: batch, Status: batch.Status, Published: published}
	if batch.Status.Terminal() {
		return result, nil
	}
	for _, f := range published.Filenames {
		if !b.uploaded[id][f] {
			return result, nil
		}
	}

	current, err := b.manifests.ReadManifest(ctx, batch.Role, batch.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := b.manifests.PersistManifest(ctx, batch.Role, batch.OwnerID, published); err != nil {
		return nil, err
	}
	batch.Status = entity.BatchStatusUploaded
	result.Status = batch.Status
	result.Transitioned = true
	if !current.IsEmpty() && current.Directory != published.Directory {
		result.Replaced = current
		batch.SupersedesDirectory = current.Directory
		batch.SupersedesFilenames = entity.FilenamesJSON(current.Filenames)
		batch.CleanupPending = true
	}
	return result, nil
}

func (b *fakeBatches) MarkCleanupDone(_ context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if batch, ok := b.batches[id]; ok {
		batch.CleanupPending = false
	}
	return nil
}

func (b *fakeBatches) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch, ok := b.batches[id]
	if !ok || batch.Status.Terminal() {
		return false, nil
	}
	batch.Status = entity.BatchStatusFailed
	batch.FailureReason = reason
	return true, nil
}

func (b *fakeBatches) ListPending(_ context.Context, limit int) ([]entity.ImageBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []entity.ImageBatch
	for _, batch := range b.batches {
		if !batch.Status.Terminal() || batch.CleanupPending {
			out = append(out, *batch)
		}
	}
	return out, nil
}

type pipelineFixture struct {
	pipeline   *ImagePipeline
	store      *fakeStore
	dispatcher *fakeDispatcher
	batches    *fakeBatches
	manifests  *fakeManifests
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	cfg := config.LoadEnvConfig()
	manifests := newFakeManifests()
	f := &pipelineFixture{
		store:      newFakeStore(),
		dispatcher: &fakeDispatcher{},
		batches:    newFakeBatches(manifests),
		manifests:  manifests,
	}
	f.pipeline = NewImagePipeline(cfg, f.store, f.dispatcher, f.batches, manifests,
		"https://cdn.example.com", infra.NewDiscardLogger(), nil)
	return f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{G: 255, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{B: 255, A: 255}), imaging.JPEG))
	return buf.Bytes()
}
