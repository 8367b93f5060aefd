package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrRequeue tells the consumer to put a delivery back on the queue and
// retry it later. The export worker returns it while another job of the
// same user holds the concurrency lock.
var ErrRequeue = errors.New("requeue delivery")

// prefetchCount bounds how many deliveries are in flight at once. The
// dispatch semaphore matches it so prefetched messages really are worked
// in parallel: one user's long export holds only its own slot while the
// per-user lock does the serializing, and other users' exports keep
// flowing.
const prefetchCount = 10

const (
	defaultMaxAttempts  = 3
	defaultRequeueDelay = 5 * time.Second
	defaultRetryDelay   = 10 * time.Second
)

// Handler processes one export event. Returning nil acknowledges the
// delivery; ErrRequeue sends it back to the queue without counting as an
// attempt; any other error counts against the bounded retry policy.
type Handler func(ctx context.Context, ev ExportRequestedEvent) error

// eventPublisher re-enqueues events for the retry policy.
type eventPublisher interface {
	PublishExportRequested(ctx context.Context, ev ExportRequestedEvent) error
}

// Consumer drains the export queue and feeds events to the handler. It
// runs a reconnect loop with exponential backoff and only stops when the
// context is cancelled, so a broker restart never takes the worker down.
//
// Failed handler runs are retried: the event goes back on the queue with
// an incremented attempt counter until MaxAttempts runs have failed, then
// the Exhausted hook (when set) observes the final error so the job row
// can be closed out, and the delivery is dropped.
type Consumer struct {
	URL         string
	Queue       string
	Handler     Handler
	MaxAttempts int
	Exhausted   func(ctx context.Context, ev ExportRequestedEvent, err error)

	requeue      eventPublisher
	requeueDelay time.Duration
	retryDelay   time.Duration
}

func NewConsumer(url, queueName string, h Handler) *Consumer {
	return &Consumer{
		URL:          url,
		Queue:        queueName,
		Handler:      h,
		MaxAttempts:  defaultMaxAttempts,
		requeue:      NewPublisher(url, queueName),
		requeueDelay: defaultRequeueDelay,
		retryDelay:   defaultRetryDelay,
	}
}

// Start blocks, consuming until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("export-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			log.Printf("export-consumer: consume loop ended: %v; reconnecting", err)
			_ = conn.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		log.Printf("export-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	return c.dispatch(ctx, msgs)
}

// dispatch fans deliveries out to goroutines, at most prefetchCount in
// flight. Handling must not run inline: a single multi-minute export
// would otherwise stall every other user's delivery behind it.
func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery) error {
	sem := make(chan struct{}, prefetchCount)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return ctx.Err()
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.handleDelivery(ctx, d)
			}(d)
		}
	}
}

func (c *Consumer) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return defaultMaxAttempts
}

// wait pauses without going deaf to cancellation.
func (c *Consumer) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var ev ExportRequestedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Printf("export-consumer: unmarshal failed: %v", err)
		_ = d.Nack(false, false) // malformed, do not requeue
		return
	}

	err := c.Handler(ctx, ev)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrRequeue):
		// Same-user job in flight. Contention is not a failed attempt;
		// give the running export some room before this delivery comes
		// back around.
		c.wait(ctx, c.requeueDelay)
		_ = d.Nack(false, true)
	case ctx.Err() != nil:
		// Shutdown mid-job: redelivery finishes it.
		_ = d.Nack(false, true)
	default:
		c.retryOrFail(ctx, d, ev, err)
	}
}

// retryOrFail applies the bounded retry policy. The attempt counter rides
// in the event itself, so the count survives the round trip through the
// broker.
func (c *Consumer) retryOrFail(ctx context.Context, d amqp.Delivery, ev ExportRequestedEvent, err error) {
	attempt := ev.Attempt + 1 // runs used, this one included
	if attempt < c.maxAttempts() {
		log.Printf("export-consumer: job %s attempt %d failed: %v; retrying", ev.JobID, attempt, err)
		ev.Attempt = attempt
		c.wait(ctx, c.retryDelay)
		if perr := c.requeue.PublishExportRequested(ctx, ev); perr != nil {
			// Could not hand the retry over; put the original back so
			// the job is not lost. Its counter stays put, which errs on
			// the side of retrying too often rather than too little.
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	log.Printf("export-consumer: job %s failed after %d attempts: %v", ev.JobID, attempt, err)
	if c.Exhausted != nil {
		c.Exhausted(ctx, ev, err)
	}
	_ = d.Nack(false, false)
}
