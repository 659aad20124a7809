package queue // queue consumer writing the audit log

import (
	"context"       // cancellation and deadlines
	"encoding/json" // event payload encoding
	"errors"        // error wrapping and matching
	"fmt"           // formatted errors and strings
	"os"            // environment and file access
	"path/filepath" // audit log path
	"time"          // timeouts and timestamps

	amqp "github.com/rabbitmq/amqp091-go" // RabbitMQ client

	"github.com/iliyamo/auth-session/internal/logging" // structured logger
)

// AuditLogName is the file, inside the configured directory, that receives
// one line per consumed event.
const AuditLogName = "auth.log"

// Consumer drains the auth events queue into the audit log.
type Consumer struct {
	URL    string
	Queue  string
	LogDir string
	Log    logging.Logger
}

// Run connects, consumes, and reconnects with exponential backoff until ctx
// is cancelled.  Messages that cannot be handled are rejected without
// requeue so a poison message does not spin.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn(ctx, "auth-consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn(ctx, "auth-consumer: consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn(ctx, "auth-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.Log.Error(ctx, "auth-consumer: handle message failed", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev AuthEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.Username == "" {
		return errors.New("event missing type or username")
	}
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, AuditLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | username=%q\n", ev.OccurredAt, ev.Type, ev.Username)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
