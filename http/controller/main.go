package controller

import (
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/service"
)

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
	Pipeline   *service.ImagePipeline
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository, pipeline *service.ImagePipeline) *Controller {
	if repo == nil {
		panic("Failed to initialize Repository")
	}
	if pipeline == nil {
		panic("Failed to initialize Image pipeline")
	}
	return &Controller{
		Config:     config,
		Infra:      infra,
		Repository: repo,
		Pipeline:   pipeline,
	}
}
