package repository

import (
	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"gorm.io/gorm"
)

type PropertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Create creates a new property
func (r *PropertyRepository) Create(property *entity.Property) error {
	return r.db.Create(property).Error
}

// FindByID finds a property by its ID
func (r *PropertyRepository) FindByID(id uuid.UUID) (*entity.Property, error) {
	var property entity.Property
	err := r.db.Where("id = ?", id).First(&property).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// FindByIDAndOwnerID finds a property owned by the given user
func (r *PropertyRepository) FindByIDAndOwnerID(id, ownerID uuid.UUID) (*entity.Property, error) {
	var property entity.Property
	err := r.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&property).Error
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// List returns a page of properties, newest first, optionally filtered by city
func (r *PropertyRepository) List(city string, offset, limit int) ([]entity.Property, int64, error) {
	query := r.db.Model(&entity.Property{})
	if city != "" {
		query = query.Where("LOWER(city) = LOWER(?)", city)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var properties []entity.Property
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&properties).Error
	return properties, total, err
}

// Update saves the editable fields of a property; manifests are written through ManifestRepository
func (r *PropertyRepository) Update(property *entity.Property) error {
	return r.db.Model(&entity.Property{}).Where("id = ?", property.ID).
		Select("title", "description", "address", "city", "state", "price").
		Updates(property).Error
}

// Delete deletes a property by ID
func (r *PropertyRepository) Delete(id uuid.UUID) error {
	return r.db.Where("id = ?", id).Delete(&entity.Property{}).Error
}
