package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeTypeFanout = "fanout"
	durable            = true
	deleteWhenUnused   = false
	internal           = false
	noWait             = false
	contentType        = "application/json"
)

// session is one open connection and channel.
type session interface {
	declare(exchange string) error
	publish(ctx context.Context, exchange string, body []byte) error
	notifyClose() <-chan *amqp.Error
	close() error
}

type dialFunc func(url string) (session, error)

type amqpSession struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func dialAMQP(url string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	return &amqpSession{conn: conn, channel: channel}, nil
}

func (s *amqpSession) declare(exchange string) error {
	return s.channel.ExchangeDeclare(
		exchange,
		exchangeTypeFanout,
		durable,
		deleteWhenUnused,
		internal,
		noWait,
		nil, // arguments
	)
}

func (s *amqpSession) publish(ctx context.Context, exchange string, body []byte) error {
	return s.channel.PublishWithContext(ctx,
		exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (s *amqpSession) notifyClose() <-chan *amqp.Error {
	return s.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (s *amqpSession) close() error {
	if s.conn.IsClosed() {
		return nil
	}
	s.channel.Close()
	return s.conn.Close()
}
