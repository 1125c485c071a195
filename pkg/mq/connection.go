package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange carrying poll and dispatch tasks.
const ExchangeName = "inboxwhats.tasks"

const heartbeat = 10 * time.Second

// NewConnection dials RabbitMQ. name shows up in the management UI so the
// publisher and each consumer can be told apart.
func NewConnection(url, name string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName("inboxwhats:" + name)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ (%s): %w", name, err)
	}
	return conn, nil
}

// DeclareExchange declares the durable task exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil)
}
