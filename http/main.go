package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/http/controller"
	routes "github.com/tnqbao/gau-property-media/http/route"
	infraPkg "github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/service"
)

func main() {
	err := godotenv.Load("staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)
	pipeline := service.InitImagePipeline(cfg, infra, repo)

	ctrl := controller.NewController(cfg, infra, repo, pipeline)

	router := routes.SetupRouter(ctrl)

	log.Println("HTTP Server started on :8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
