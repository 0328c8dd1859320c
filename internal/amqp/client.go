package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/rabbitmq/amqp091-go"

	"budgetcast/internal/core"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrCircuitOpen is returned by publish calls while the broker is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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

	dialAttempts uint
	dialDelay    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithDialRetry sets how many times connecting is attempted and the base delay between attempts.
func WithDialRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.dialAttempts = attempts
		c.dialDelay = delay
	}
}

func NewClient(ctx context.Context, url, exchangeName, queueName string, opts ...Option) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		dialAttempts: 5,
		dialDelay:    time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}

	if err := client.connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// connect dials the broker, retrying connection failures with backoff, and
// declares the topology.
func (c *Client) connect(ctx context.Context) error {
	var conn *amqp091.Connection
	err := retry.Do(
		func() error {
			var dialErr error
			conn, dialErr = amqp091.Dial(c.url)
			return dialErr
		},
		retry.Context(ctx),
		retry.Attempts(c.dialAttempts),
		retry.Delay(c.dialDelay),
		retry.MaxDelay(maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isConnectionError),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "AMQP dial failed, retrying",
				"attempt", n+1,
				"max_attempts", c.dialAttempts,
				"error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	return nil
}

func setup(channel *amqp091.Channel, exchangeName, queueName string) error {
	// Declare exchange
	err := channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name
	err = channel.QueueBind(
		queueName,
		queueName,
		exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// ensureChannel reconnects when the channel or connection has been closed.
func (c *Client) ensureChannel(ctx context.Context) (*amqp091.Channel, error) {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.mu.Unlock()

	if ch != nil && !ch.IsClosed() && conn != nil && !conn.IsClosed() {
		return ch, nil
	}

	c.closeConnection()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.currentChannel(), nil
}

// PublishRun publishes the summary of a computed forecast to the journal queue
func (c *Client) PublishRun(ctx context.Context, s core.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish run %s: %w", s.ID, ErrCircuitOpen)
	}

	body, err := EncodeRun(s)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = retry.Do(
		func() error {
			ch, err := c.ensureChannel(ctx)
			if err != nil {
				return err
			}
			return ch.PublishWithContext(
				ctx,
				c.exchangeName, // exchange
				c.queueName,    // routing key
				false,          // mandatory
				false,          // immediate
				amqp091.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp091.Persistent,
					MessageId:    s.ID,
					Timestamp:    time.Now(),
					Type:         RunCompletedType,
					Body:         body,
				},
			)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(isConnectionError),
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published forecast run message",
		"run_id", s.ID,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// RecordRun journals a computed forecast through the broker.
func (c *Client) RecordRun(ctx context.Context, s core.RunSummary) error {
	return c.PublishRun(ctx, s)
}

// Acknowledger is the part of a delivery the consumer settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// RunHandler stores or otherwise processes one journal entry.
type RunHandler func(ctx context.Context, s core.RunSummary) error

// Outcome of handling one delivery
type Outcome int

const (
	Acked Outcome = iota
	Rejected
	Requeued
)

// HandleDelivery decodes body, runs handler and settles the delivery:
// malformed bodies are rejected, handler failures requeued.
func HandleDelivery(ctx context.Context, body []byte, ack Acknowledger, handler RunHandler) Outcome {
	s, err := DecodeRun(body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to decode forecast run message", "error", err)
		if nackErr := ack.Nack(false, false); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to reject message", "error", nackErr)
		}
		return Rejected
	}

	if err := handler(ctx, s); err != nil {
		slog.ErrorContext(ctx, "Failed to handle forecast run message",
			"error", err,
			"run_id", s.ID)
		if nackErr := ack.Nack(false, true); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to requeue message", "error", nackErr, "run_id", s.ID)
		}
		return Requeued
	}

	if err := ack.Ack(false); err != nil {
		slog.ErrorContext(ctx, "Failed to acknowledge message", "error", err, "run_id", s.ID)
	}
	slog.DebugContext(ctx, "Processed forecast run message", "run_id", s.ID)
	return Acked
}

// ConsumeRuns consumes journal messages until ctx is cancelled, reconnecting
// with exponential backoff when the broker connection drops.
func (c *Client) ConsumeRuns(ctx context.Context, handler RunHandler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Message consumption interrupted, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"backoff", wait)
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if _, err := c.ensureChannel(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to reconnect to AMQP", "error", err)
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler RunHandler) error {
	ch := c.currentChannel()
	if ch == nil {
		return fmt.Errorf("no open channel")
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming forecast run messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			HandleDelivery(ctx, delivery.Body, delivery, handler)
		}
	}
}

// Ping reports whether the broker connection is open.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

func (c *Client) closeConnection() {
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
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	failures := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
