package repository

import (
	"github.com/tnqbao/gau-property-media/infra"
	"gorm.io/gorm"
)

type Repository struct {
	PropertyRepo   *PropertyRepository
	UserRepo       *UserRepository
	ImageBatchRepo *ImageBatchRepository
	ManifestRepo   *ManifestRepository
	db             *gorm.DB
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	repository = NewRepository(infra.Postgres.DB)
	return repository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		PropertyRepo:   NewPropertyRepository(db),
		UserRepo:       NewUserRepository(db),
		ImageBatchRepo: NewImageBatchRepository(db),
		ManifestRepo:   NewManifestRepository(db),
		db:             db,
	}
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func (r *Repository) BeginTransaction() *gorm.DB {
	return r.db.Begin()
}

func (r *Repository) WithTransaction(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}
