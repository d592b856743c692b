package infra

import (
	"fmt"

	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/infra/produce"
)

type Infra struct {
	Redis      *RedisClient
	Postgres   *PostgresClient
	Logger     *LoggerClient
	Telemetry  *Telemetry
	RabbitMQ   *RabbitMQClient
	Produce    *produce.Produce
	Storage    ObjectStorage
	Transcoder *ImageTranscoder
}

var infraInstance *Infra

func InitInfra(cfg *config.Config) *Infra {
	if infraInstance != nil {
		return infraInstance
	}

	logger := InitLoggerClient(cfg.EnvConfig)
	if logger == nil {
		panic("Failed to initialize Logger service")
	}

	telemetry := InitTelemetry(cfg.EnvConfig)

	redis := InitRedisClient(cfg.EnvConfig)
	if redis == nil {
		panic("Failed to initialize Redis service")
	}

	postgres := InitPostgresClient(cfg.EnvConfig)
	if postgres == nil {
		panic("Failed to initialize Postgres service")
	}

	rabbitMQ := InitRabbitMQClient(cfg.EnvConfig)
	if rabbitMQ == nil {
		panic("Failed to initialize RabbitMQ service")
	}

	produceService := produce.InitProduce(rabbitMQ.Channel, cfg.EnvConfig.PrivateKey)
	if produceService == nil {
		panic("Failed to initialize Produce service")
	}

	storage, err := InitObjectStorage(cfg.EnvConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize object storage: %v", err))
	}

	infraInstance = &Infra{
		Redis:      redis,
		Postgres:   postgres,
		Logger:     logger,
		Telemetry:  telemetry,
		RabbitMQ:   rabbitMQ,
		Produce:    produceService,
		Storage:    storage,
		Transcoder: NewImageTranscoder(cfg.EnvConfig.Image.JPEGQuality),
	}

	return infraInstance
}

func GetClient() *Infra {
	if infraInstance == nil {
		panic("Infra not initialized. Call InitInfra() first.")
	}
	return infraInstance
}
