package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends export events to a durable queue. A fresh connection is
// dialed per publish: submissions are rare relative to reads, and a
// short-lived connection sidesteps stale-channel handling entirely. Errors
// are logged and returned so callers can decide whether to surface them.
type Publisher struct {
	URL   string
	Queue string
}

func NewPublisher(url, queueName string) *Publisher {
	return &Publisher{URL: url, Queue: queueName}
}

// PublishExportRequested declares the durable queue (idempotent) and
// publishes the event as a persistent message so it survives a broker
// restart. Delivery is at-least-once; the worker is idempotent.
func (p *Publisher) PublishExportRequested(ctx context.Context, ev ExportRequestedEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}

	return nil
}
