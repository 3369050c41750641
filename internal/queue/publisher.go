// Package queue publishes booking lifecycle events to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	QueueBookingCreated   = "booking.created"
	QueueBookingCancelled = "booking.cancelled"
)

const dialTimeout = 3 * time.Second

var (
	ErrUnknownEvent  = errors.New("unknown booking event type")
	ErrBrokerBlocked = errors.New("rabbitmq connection blocked by broker")
)

// BookingEvent is the message body of both queues.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  uuid.UUID `json:"booking_id"`
	OwnerID    int64     `json:"owner_id"`
	SeatIDs    []int64   `json:"seat_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

func queueFor(eventType string) (string, error) {
	switch eventType {
	case QueueBookingCreated, QueueBookingCancelled:
		return eventType, nil
	}
	return "", ErrUnknownEvent
}

// link is one dialed connection with its publishing channel.
type link struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	blocked atomic.Bool
}

func (l *link) usable() bool {
	return l != nil && l.ch != nil && !l.ch.IsClosed()
}

// Publisher keeps one connection and channel open and redials when a
// publish finds them closed. Every publish, redial included, ends when its
// context does.
type Publisher struct {
	url         string
	logger      *slog.Logger
	dialTimeout time.Duration

	// sem is a one-slot lock over link that waiters can give up on.
	sem  chan struct{}
	link *link
}

func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	const op = "queue.NewPublisher"

	p := newPublisher(url, logger)

	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()

	if err := p.connect(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return p, nil
}

func newPublisher(url string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:         url,
		logger:      logger,
		dialTimeout: dialTimeout,
		sem:         make(chan struct{}, 1),
	}
}

func (p *Publisher) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) release() { <-p.sem }

// connect dials a new link. The TCP dial and the AMQP handshake both end at
// the earlier of ctx's deadline and the dial timeout.
func (p *Publisher) connect(ctx context.Context) error {
	deadline := time.Now().Add(p.dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Deadline: deadline}
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// amqp clears the deadline once the connection is open.
			if err := c.SetDeadline(deadline); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	for _, name := range []string{QueueBookingCreated, QueueBookingCancelled} {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	l := &link{conn: conn, ch: ch}
	blockings := conn.NotifyBlocked(make(chan amqp.Blocking, 1))
	go func() {
		for b := range blockings {
			l.blocked.Store(b.Active)
			if b.Active {
				p.logger.Warn("rabbitmq connection blocked", "reason", b.Reason)
			}
		}
	}()
	p.link = l

	return nil
}

// Publish sends ev as a persistent message to the queue named by ev.Type.
//
// Returns:
//   - error: ErrUnknownEvent if ev.Type names no queue.
//   - error: ErrBrokerBlocked while the broker refuses publishes.
//   - error: ctx.Err() if ctx ends while waiting for another publish or a redial.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	const op = "queue.Publisher.Publish"

	queue, err := queueFor(ev.Type)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.BookingID.String(),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}

	if err := p.acquire(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	defer p.release()

	if !p.link.usable() {
		p.logger.Warn("rabbitmq channel closed, reconnecting")
		_ = p.closeLink()
		if err := p.connect(ctx); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	if p.link.blocked.Load() {
		return fmt.Errorf("%s:%w", op, ErrBrokerBlocked)
	}

	if err := p.link.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.release()

	return p.closeLink()
}

func (p *Publisher) closeLink() error {
	l := p.link
	p.link = nil
	if l == nil {
		return nil
	}

	var errs []error
	if l.ch != nil {
		if err := l.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
