package repository

import (
	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID finds a user by ID
func (r *UserRepository) FindByID(id uuid.UUID) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreate returns the local row for an authenticated user, creating it on first sight
func (r *UserRepository) FindOrCreate(id uuid.UUID, username string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where(entity.User{ID: id}).
		Attrs(entity.User{Username: username}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
