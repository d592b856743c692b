package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/utils"
)

var (
	ErrNoFiles      = errors.New("no files uploaded")
	ErrTooManyFiles = errors.New("too many files")
	ErrFileTooLarge = errors.New("file too large")
)

type TransientStore interface {
	Put(ctx context.Context, key string, data []byte) error
	PutBatch(ctx context.Context, batchKey string, files map[string][]byte) error
	Delete(ctx context.Context, key string) error
	DeleteKeyInBatch(ctx context.Context, batchKey, filename string) error
}

type Dispatcher interface {
	EnqueueTranscode(ctx context.Context, task produce.TranscodeTask) (produce.TaskHandle, error)
	EnqueueDeleteBatch(ctx context.Context, task produce.DeleteBatchTask) (produce.TaskHandle, error)
}

type BatchRecorder interface {
	CreateWithImages(ctx context.Context, batch *entity.ImageBatch) error
	Finalize(ctx context.Context, id uuid.UUID) (*repository.FinalizeResult, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkCleanupDone(ctx context.Context, id uuid.UUID) error
	ListPending(ctx context.Context, limit int) ([]entity.ImageBatch, error)
}

type ManifestStore interface {
	ReadManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error)
	ClearManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error)
}

// UploadFile is one multipart file as received by the HTTP layer.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StagedImage is an upload sitting in the transient store. Filename is the generated
// key, which is also the name the processed image is stored under.
type StagedImage struct {
	StagingKey   string `json:"staging_key,omitempty"`
	BatchKey     string `json:"batch_key,omitempty"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int    `json:"size"`
}

// ImagePipeline stages uploads and dispatches their processing and cleanup.
type ImagePipeline struct {
	cfg        *config.EnvConfig
	store      TransientStore
	dispatcher Dispatcher
	batches    BatchRecorder
	manifests  ManifestStore
	baseURL    string
	logger     *infra.LoggerClient
	metrics    *infra.PipelineMetrics
	now        func() time.Time
}

func NewImagePipeline(
	cfg *config.EnvConfig,
	store TransientStore,
	dispatcher Dispatcher,
	batches BatchRecorder,
	manifests ManifestStore,
	baseURL string,
	logger *infra.LoggerClient,
	metrics *infra.PipelineMetrics,
) *ImagePipeline {
	if metrics == nil {
		metrics = infra.NewNoopPipelineMetrics()
	}
	return &ImagePipeline{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		batches:    batches,
		manifests:  manifests,
		baseURL:    baseURL,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

func InitImagePipeline(cfg *config.Config, inf *infra.Infra, repo *repository.Repository) *ImagePipeline {
	return NewImagePipeline(
		cfg.EnvConfig,
		inf.Redis,
		inf.Produce.ImageService,
		repo.ImageBatchRepo,
		repo.ManifestRepo,
		inf.Storage.PublicBaseURL(),
		inf.Logger,
		inf.Telemetry.Metrics,
	)
}

// ValidateUploads checks count, size, extension and content of every file.
func (p *ImagePipeline) ValidateUploads(files []UploadFile) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if p.cfg.Image.MaxFiles > 0 && len(files) > p.cfg.Image.MaxFiles {
		return fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), p.cfg.Image.MaxFiles)
	}

	for _, f := range files {
		if _, err := utils.ValidateImageExtension(f.Filename); err != nil {
			return err
		}
		if len(f.Data) == 0 {
			return fmt.Errorf("%w: %q is empty", entity.ErrUnsupportedImageFormat, f.Filename)
		}
		if p.cfg.Image.MaxUploadBytes > 0 && int64(len(f.Data)) > p.cfg.Image.MaxUploadBytes {
			return fmt.Errorf("%w: %q", ErrFileTooLarge, f.Filename)
		}
		mtype := mimetype.Detect(f.Data)
		if !mtype.Is("image/jpeg") && !mtype.Is("image/png") {
			return fmt.Errorf("%w: %q looks like %s", entity.ErrUnsupportedImageFormat, f.Filename, mtype.String())
		}
	}
	return nil
}

// StageUpload validates every file, then writes each under its own staging key.
// Nothing is written when any file is rejected.
func (p *ImagePipeline) StageUpload(ctx context.Context, files []UploadFile) ([]StagedImage, error) {
	if err := p.ValidateUploads(files); err != nil {
		return nil, err
	}
	return p.stageEach(ctx, files)
}

func (p *ImagePipeline) stageEach(ctx context.Context, files []UploadFile) ([]StagedImage, error) {
	staged := make([]StagedImage, 0, len(files))
	for _, f := range files {
		key, err := utils.NewStagingKey(f.Filename)
		if err != nil {
			p.discard(ctx, staged)
			return nil, err
		}
		if err := p.store.Put(ctx, key, f.Data); err != nil {
			p.discard(ctx, staged)
			return nil, err
		}
		staged = append(staged, StagedImage{
			StagingKey:   key,
			Filename:     key,
			OriginalName: f.Filename,
			ContentType:  infra.ContentTypeFor(key),
			Size:         len(f.Data),
		})
	}

	p.metrics.ImagesStaged(ctx, "single", len(staged))
	return staged, nil
}

// StageBatch validates every file and writes them together into one staging hash.
func (p *ImagePipeline) StageBatch(ctx context.Context, files []UploadFile) (string, []StagedImage, error) {
	if err := p.ValidateUploads(files); err != nil {
		return "", nil, err
	}
	return p.stageHash(ctx, files)
}

func (p *ImagePipeline) stageHash(ctx context.Context, files []UploadFile) (string, []StagedImage, error) {
	batchKey := "batch-" + uuid.NewString()
	blobs := make(map[string][]byte, len(files))
	staged := make([]StagedImage, 0, len(files))
	for _, f := range files {
		key, err := utils.NewStagingKey(f.Filename)
		if err != nil {
			return "", nil, err
		}
		blobs[key] = f.Data
		staged = append(staged, StagedImage{
			BatchKey:     batchKey,
			Filename:     key,
			OriginalName: f.Filename,
			ContentType:  infra.ContentTypeFor(key),
			Size:         len(f.Data),
		})
	}

	if err := p.store.PutBatch(ctx, batchKey, blobs); err != nil {
		return "", nil, err
	}

	p.metrics.ImagesStaged(ctx, "batch", len(staged))
	return batchKey, staged, nil
}

func (p *ImagePipeline) discard(ctx context.Context, staged []StagedImage) {
	for _, s := range staged {
		var err error
		if s.BatchKey != "" {
			err = p.store.DeleteKeyInBatch(ctx, s.BatchKey, s.Filename)
		} else {
			err = p.store.Delete(ctx, s.StagingKey)
		}
		if err != nil {
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Failed to discard staged image %s: %v", s.Filename, err)
		}
	}
}

// DispatchProcessing mints a batch directory for staged, records the batch and enqueues one
// transcode task per image. The manifest the batch will publish is fixed here from the
// staged filenames, independent of the order tasks complete in.
func (p *ImagePipeline) DispatchProcessing(
	ctx context.Context,
	staged []StagedImage,
	role entity.ImageRole,
	ownerID uuid.UUID,
	ownerLabel string,
	supersedes entity.Manifest,
) (*entity.ImageBatch, []produce.TaskHandle, error) {
	if !role.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown role %q", entity.ErrInvalidTask, role)
	}
	if len(staged) == 0 {
		return nil, nil, ErrNoFiles
	}

	label := ""
	if role != entity.ImageRoleListing {
		label = ownerLabel
	}

	filenames := make([]string, 0, len(staged))
	for _, s := range staged {
		filenames = append(filenames, s.Filename)
	}
	manifest, err := entity.BuildManifest(utils.NewBatchDirectory(label), filenames)
	if err != nil {
		return nil, nil, err
	}

	batch := entity.NewImageBatch(role, ownerID, manifest, supersedes, p.now().Add(p.cfg.Pipeline.BatchDeadline))
	if err := p.batches.CreateWithImages(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("failed to record image batch: %w", err)
	}

	handles := make([]produce.TaskHandle, 0, len(staged))
	for i, s := range staged {
		handle, err := p.dispatcher.EnqueueTranscode(ctx, produce.TranscodeTask{
			BatchID:     batch.ID,
			Role:        role,
			Directory:   manifest.Directory,
			Filename:    s.Filename,
			StagingKey:  s.StagingKey,
			BatchKey:    s.BatchKey,
			ContentType: s.ContentType,
		})
		if err != nil {
			if _, markErr := p.batches.MarkFailed(ctx, batch.ID, repository.ReasonDispatchError); markErr != nil {
				p.logger.ErrorWithContextf(ctx, markErr, "[Image Pipeline] Failed to mark batch %s failed: %v", batch.ID, markErr)
			}
			// Images already dispatched are left to their workers.
			p.discard(ctx, staged[i:])
			return nil, nil, fmt.Errorf("failed to enqueue transcode of %s: %w", s.Filename, err)
		}
		handles = append(handles, handle)
	}

	p.logger.InfoWithContextf(ctx, "[Image Pipeline] Dispatched %d %s images for owner %s into %s",
		len(handles), role, ownerID, manifest.Directory)
	return batch, handles, nil
}

// DispatchDeletion enqueues removal of every object m references. An empty manifest
// yields a zero handle and no task.
func (p *ImagePipeline) DispatchDeletion(ctx context.Context, m entity.Manifest, role entity.ImageRole) (produce.TaskHandle, error) {
	if m.IsEmpty() || len(m.Filenames) == 0 {
		return produce.TaskHandle{}, nil
	}

	settings, ok := p.cfg.Role(string(role))
	if !ok {
		return produce.TaskHandle{}, fmt.Errorf("%w: unknown role %q", entity.ErrInvalidTask, role)
	}

	handle, err := p.dispatcher.EnqueueDeleteBatch(ctx, produce.DeleteBatchTask{
		Role:      role,
		BaseDir:   settings.BaseDir,
		Directory: m.Directory,
		Filenames: m.Filenames,
	})
	if err != nil {
		return produce.TaskHandle{}, fmt.Errorf("failed to enqueue deletion of %s: %w", m.Directory, err)
	}
	return handle, nil
}

// ManifestToURLs renders a stored manifest as public URLs. Corrupt or unknown input
// renders as an empty list.
func (p *ImagePipeline) ManifestToURLs(raw []byte, role entity.ImageRole) []string {
	m, err := entity.ParseManifest(raw)
	if err != nil {
		p.logger.WarningWithContextf(context.Background(), "[Image Pipeline] Rendering corrupt %s manifest as empty: %v", role, err)
		return []string{}
	}
	return p.ManifestURLs(m, role)
}

func (p *ImagePipeline) ManifestURLs(m entity.Manifest, role entity.ImageRole) []string {
	settings, ok := p.cfg.Role(string(role))
	if !ok || m.IsEmpty() {
		return []string{}
	}
	return m.ResolveURLs(p.baseURL, settings.BaseDir)
}

// ReplaceImages stages files as the owner's new images for role. The current manifest is
// recorded as superseded; the batch gate swaps manifests and deletes the old objects once
// every new image is uploaded.
func (p *ImagePipeline) ReplaceImages(
	ctx context.Context,
	role entity.ImageRole,
	ownerID uuid.UUID,
	ownerLabel string,
	files []UploadFile,
) (*entity.ImageBatch, []produce.TaskHandle, error) {
	if err := p.ValidateUploads(files); err != nil {
		return nil, nil, err
	}

	current, err := p.currentManifest(ctx, role, ownerID)
	if err != nil {
		return nil, nil, err
	}

	var staged []StagedImage
	if role == entity.ImageRoleListing {
		staged, err = p.stageEach(ctx, files)
	} else {
		_, staged, err = p.stageHash(ctx, files)
	}
	if err != nil {
		return nil, nil, err
	}

	return p.DispatchProcessing(ctx, staged, role, ownerID, ownerLabel, current)
}

// DeleteImages clears the owner's manifest for role and then dispatches deletion of the
// objects it held. The read and the clear are one step, so a batch published in between
// is the one cleared and deleted.
func (p *ImagePipeline) DeleteImages(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (produce.TaskHandle, error) {
	previous, err := p.manifests.ClearManifest(ctx, role, ownerID)
	if err != nil {
		if errors.Is(err, entity.ErrManifestCorrupt) {
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Current %s manifest of %s is corrupt, its objects cannot be cleaned up: %v", role, ownerID, err)
			return produce.TaskHandle{}, nil
		}
		return produce.TaskHandle{}, err
	}
	if previous.IsEmpty() {
		return produce.TaskHandle{}, nil
	}
	return p.DispatchDeletion(ctx, previous, role)
}

func (p *ImagePipeline) currentManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error) {
	current, err := p.manifests.ReadManifest(ctx, role, ownerID)
	if err != nil {
		if errors.Is(err, entity.ErrManifestCorrupt) {
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Current %s manifest of %s is corrupt, its objects cannot be cleaned up: %v", role, ownerID, err)
			return entity.Manifest{}, nil
		}
		return entity.Manifest{}, err
	}
	return current, nil
}

// CompleteBatch runs the manifest write gate for a batch and dispatches deletion of
// whatever objects the outcome left unreferenced. A deletion that could not be enqueued
// stays owed on the batch and is retried by the next call for it.
func (p *ImagePipeline) CompleteBatch(ctx context.Context, batchID uuid.UUID) (*repository.FinalizeResult, error) {
	result, err := p.batches.Finalize(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if result.Transitioned {
		p.metrics.BatchFinished(ctx, string(result.Status))
		role := result.Batch.Role

		switch {
		case result.Stale:
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Batch %s will not be published (%s), deleting its objects",
				batchID, result.Batch.FailureReason)
		case result.Status == entity.BatchStatusUploaded:
			if result.ReplacedCorrupt {
				p.logger.WarningWithContextf(ctx, "[Image Pipeline] Replaced %s manifest of %s was corrupt, old objects left in place",
					role, result.Batch.OwnerID)
			}
			p.logger.InfoWithContextf(ctx, "[Image Pipeline] Published batch %s as %s manifest of %s",
				batchID, role, result.Batch.OwnerID)
		default:
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Batch %s failed: %s", batchID, result.Batch.FailureReason)
		}
	}

	if err := p.dispatchCleanup(ctx, result.Batch); err != nil {
		return result, err
	}
	return result, nil
}

func (p *ImagePipeline) dispatchCleanup(ctx context.Context, batch *entity.ImageBatch) error {
	if batch == nil || !batch.CleanupPending || !batch.Status.Terminal() {
		return nil
	}

	owed, err := batch.Unreferenced()
	if err != nil {
		return err
	}
	if _, err := p.DispatchDeletion(ctx, owed, batch.Role); err != nil {
		return err
	}

	// A failed mark only costs a duplicate deletion on the next pass.
	if err := p.batches.MarkCleanupDone(ctx, batch.ID); err != nil {
		p.logger.WarningWithContextf(ctx, "[Image Pipeline] Failed to record cleanup of batch %s: %v", batch.ID, err)
		return nil
	}
	batch.CleanupPending = false
	return nil
}

// SweepBatches re-evaluates pending batches and fails those past their deadline. Terminal
// batches that still owe a deletion have it enqueued again.
// It returns how many batches reached a terminal status.
func (p *ImagePipeline) SweepBatches(ctx context.Context, limit int) (int, error) {
	pending, err := p.batches.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	now := p.now()
	finished := 0
	for _, batch := range pending {
		result, err := p.CompleteBatch(ctx, batch.ID)
		if err != nil {
			p.logger.ErrorWithContextf(ctx, err, "[Image Pipeline] Failed to evaluate batch %s: %v", batch.ID, err)
			continue
		}
		if result.Transitioned {
			finished++
			continue
		}
		if result.Status.Terminal() || now.Before(batch.Deadline) {
			continue
		}

		changed, err := p.batches.MarkFailed(ctx, batch.ID, repository.ReasonDeadline)
		if err != nil {
			p.logger.ErrorWithContextf(ctx, err, "[Image Pipeline] Failed to expire batch %s: %v", batch.ID, err)
			continue
		}
		if changed {
			finished++
			p.metrics.BatchFinished(ctx, string(entity.BatchStatusFailed))
			p.logger.WarningWithContextf(ctx, "[Image Pipeline] Batch %s expired after %s", batch.ID, p.cfg.Pipeline.BatchDeadline)
		}
	}
	return finished, nil
}
