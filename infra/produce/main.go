package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	ImageService *ImageProduceService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel, secret string) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	imageService := InitImageProduceService(channel, secret)
	if imageService == nil {
		panic("Failed to initialize Image produce service")
	}

	produceInstance = &Produce{
		ImageService: imageService,
	}

	return produceInstance
}

func GetProduce() *Produce {
	if produceInstance == nil {
		panic("Produce not initialized. Call InitProduce() first.")
	}
	return produceInstance
}
