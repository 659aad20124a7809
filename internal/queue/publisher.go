package queue // queue publisher for auth events

import (
	"context"       // cancellation and deadlines
	"encoding/json" // event payload encoding
	"fmt"           // formatted errors and strings
	"sync"          // locking and one-time init
	"time"          // timeouts and timestamps

	amqp "github.com/rabbitmq/amqp091-go" // RabbitMQ client

	"github.com/iliyamo/auth-session/internal/service" // auth state machine
)

// Publisher sends auth events to a durable queue on the default exchange.
// The connection is opened on first use and reopened after any failure, so a
// broker outage costs one failed publish per request rather than a crash.
type Publisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ service.EventPublisher = (*Publisher)(nil)

func NewPublisher(url, queue string) *Publisher {
	return &Publisher{url: url, queue: queue}
}

// Publish marshals ev and sends it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev service.Event) error {
	body, err := json.Marshal(newAuthEvent(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the broker connection.  Safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// channel returns the open channel, dialing when needed.  Caller holds mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
