package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManifestRepository reads and writes the image manifest columns of properties and users.
type ManifestRepository struct {
	db *gorm.DB
}

func NewManifestRepository(db *gorm.DB) *ManifestRepository {
	return &ManifestRepository{db: db}
}

// ReadManifest returns the owner's current manifest for role. A NULL column is an empty manifest.
func (r *ManifestRepository) ReadManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error) {
	return r.read(r.db.WithContext(ctx), role, ownerID)
}

// ReadManifestForUpdate is ReadManifest holding the owner row lock until the surrounding
// transaction ends. It must run inside a transaction.
func (r *ManifestRepository) ReadManifestForUpdate(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error) {
	return r.read(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), role, ownerID)
}

func (r *ManifestRepository) read(db *gorm.DB, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error) {
	if !role.Valid() {
		return entity.Manifest{}, fmt.Errorf("%w: unknown role %q", entity.ErrInvalidTask, role)
	}

	var raw sql.NullString
	row := db.
		Table(role.OwnerTable()).
		Select(role.ManifestColumn()).
		Where("id = ?", ownerID).
		Row()
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Manifest{}, fmt.Errorf("%w: %s %s", entity.ErrEntityNotFound, role.OwnerTable(), ownerID)
		}
		return entity.Manifest{}, err
	}

	return entity.ParseManifest([]byte(raw.String))
}

// ClearManifest empties the owner's manifest under the owner row lock and returns what it held.
// A corrupt manifest is left in place and its error returned.
func (r *ManifestRepository) ClearManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID) (entity.Manifest, error) {
	var previous entity.Manifest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := NewManifestRepository(tx)
		current, err := locked.ReadManifestForUpdate(ctx, role, ownerID)
		if err != nil {
			return err
		}
		if current.IsEmpty() {
			return nil
		}
		if err := locked.PersistManifest(ctx, role, ownerID, entity.Manifest{}); err != nil {
			return err
		}
		previous = current
		return nil
	})
	if err != nil {
		return entity.Manifest{}, err
	}
	return previous, nil
}

// PersistManifest overwrites the owner's manifest column for role.
func (r *ManifestRepository) PersistManifest(ctx context.Context, role entity.ImageRole, ownerID uuid.UUID, m entity.Manifest) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", entity.ErrInvalidTask, role)
	}

	updates := map[string]interface{}{
		role.ManifestColumn(): m.JSON(),
		"updated_at":          time.Now(),
	}
	if role == entity.ImageRoleListing {
		updates["image_folder"] = m.Directory
	}

	result := r.db.WithContext(ctx).
		Table(role.OwnerTable()).
		Where("id = ?", ownerID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to persist %s manifest: %w", role, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", entity.ErrEntityNotFound, role.OwnerTable(), ownerID)
	}
	return nil
}
