// Package amqp publishes commit events to RabbitMQ and feeds them to
// the summary worker. Publishing is best effort: the conversation
// layer treats a nil or failing client as "no events today", never as
// a failed commit.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"advancebot/internal/dialog"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	// maxFailures consecutive publish failures open the circuit.
	maxFailures = 5
	// openTimeout is how long an open circuit rejects publishes before
	// letting one probe through.
	openTimeout = 60 * time.Second

	publishTimeout    = 5 * time.Second
	reconnectAttempts = 3
	maxBackoff        = 30 * time.Second

	// routingKey binds the commit queue on the direct exchange.
	routingKey = "transaction.committed"
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	client.conn = conn
	client.channel = channel

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return client, nil
}

// setup declares the exchange and queue and binds them. Declarations
// are idempotent, so reconnects run it again.
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(c.queueName, routingKey, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishTransactionCommitted sends one commit event. It satisfies
// the engine's publisher port. A broken connection gets one reconnect
// attempt within the publish deadline; repeated failures open the
// circuit so a dead broker cannot slow conversations down.
func (c *Client) PublishTransactionCommitted(ctx context.Context, ev dialog.CommitEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping event for token %s", ev.Token)
	}

	msg := NewCommitMessage(ev)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.publish(ctx, body)
	if err != nil && isConnectionError(err) {
		slog.WarnContext(ctx, "AMQP publish hit a dead connection, reconnecting", "error", err)
		if rerr := c.reconnect(ctx); rerr == nil {
			err = c.publish(ctx, body)
		}
	}
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published commit event",
		"token", ev.Token,
		"employee_id", ev.EmployeeID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return amqp091.ErrClosed
	}
	return channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeTransactionCommitted delivers queued commit messages to
// handler until the context ends. A handler error requeues the
// delivery; an unparseable body is dropped. Connection loss triggers
// reconnection with backoff.
func (c *Client) ConsumeTransactionCommitted(ctx context.Context, handler func(context.Context, *CommitMessage) error) error {
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || !isConnectionError(err) {
			return err
		}
		slog.WarnContext(ctx, "AMQP consume interrupted, reconnecting", "error", err)
		if rerr := c.reconnect(ctx); rerr != nil {
			return fmt.Errorf("reconnect after consume failure: %w", rerr)
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *CommitMessage) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return amqp091.ErrClosed
	}

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack off, we ack after handling
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming commit events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed: %w", amqp091.ErrClosed)
			}

			msg, err := CommitMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // drop, a retry cannot fix the body
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle commit event",
					"error", err,
					"token", msg.Token,
					"employee_id", msg.EmployeeID)
				delivery.Nack(false, true) // requeue
				continue
			}

			delivery.Ack(false)
			slog.InfoContext(ctx, "Processed commit event",
				"token", msg.Token,
				"employee_id", msg.EmployeeID,
				"month", msg.Month)
		}
	}
}

// reconnect tears the connection down and dials again with capped
// exponential backoff between attempts.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var lastErr error
	for attempt := 0; attempt < reconnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		conn, err := amqp091.Dial(c.url)
		if err != nil {
			lastErr = err
			slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		channel, err := conn.Channel()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		c.conn = conn
		c.channel = channel
		if err := c.setup(); err != nil {
			channel.Close()
			conn.Close()
			c.conn = nil
			c.channel = nil
			lastErr = err
			continue
		}
		slog.InfoContext(ctx, "AMQP connection re-established", "attempt", attempt+1)
		return nil
	}
	return fmt.Errorf("reconnect: %w", lastErr)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	count := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if count >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff doubles from one second and caps at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return maxBackoff
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// isConnectionError reports whether err looks like a dead connection
// worth redialing, as opposed to a protocol or validation failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"channel/connection is not open",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
