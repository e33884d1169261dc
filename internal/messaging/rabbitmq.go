package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Schemion/schemion-api/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

func connectToRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < MaxConnectRetry; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	slog.Error("failed to connect to rabbitmq", "attempts", MaxConnectRetry, "error", err)
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetry, err)
}

type RabbitMQOption func(*RabbitMQDispatcher)

func WithPublishRetry(attempts int, delay time.Duration) RabbitMQOption {
	return func(p *RabbitMQDispatcher) {
		p.publishAttempts = max(attempts, 1)
		p.retryDelay = delay
	}
}

func WithConfirmTimeout(timeout time.Duration) RabbitMQOption {
	return func(p *RabbitMQDispatcher) {
		p.confirmTimeout = timeout
	}
}

// RabbitMQDispatcher publishes persistent messages to durable queues and waits
// for the broker's publisher confirm before reporting success.
type RabbitMQDispatcher struct {
	connLock sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	url      string

	publishAttempts int
	retryDelay      time.Duration
	confirmTimeout  time.Duration

	closed     atomic.Bool
	destructor sync.Once
}

var _ Dispatcher = (*RabbitMQDispatcher)(nil)

func NewRabbitMQDispatcher(rabbitMQURL string, opts ...RabbitMQOption) (*RabbitMQDispatcher, error) {
	p := &RabbitMQDispatcher{
		url:             rabbitMQURL,
		publishAttempts: DefaultPublishAttempts,
		retryDelay:      DefaultPublishRetryDelay,
		confirmTimeout:  DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQDispatcher) connect() error {
	conn, err := connectToRabbitMQ(p.url)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	for _, queue := range Queues {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("failed to declare rabbitmq queue %s: %w", queue, err)
		}
	}

	if !p.install(conn, channel) {
		conn.Close()
		return ErrConnectionClosed
	}

	slog.Info("rabbitmq channel opened and queues declared")

	go p.handleReconnect(channel)

	return nil
}

// install stores a freshly opened connection unless Close has already run, in
// which case the caller owns the connection and must close it.
func (p *RabbitMQDispatcher) install(conn *amqp.Connection, channel *amqp.Channel) bool {
	p.connLock.Lock()
	defer p.connLock.Unlock()

	if p.closed.Load() {
		return false
	}
	p.conn = conn
	p.channel = channel
	return true
}

func (p *RabbitMQDispatcher) handleReconnect(channel *amqp.Channel) {
	notifyClose := channel.NotifyClose(make(chan *amqp.Error, 1))

	err, ok := <-notifyClose
	if !ok || p.closed.Load() {
		slog.Info("rabbitmq channel closed")
		return
	}

	slog.Warn("rabbitmq channel closed, attempting to reconnect", "error", err)

	p.connLock.Lock()
	p.channel = nil
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connLock.Unlock()

	// The lock is not held while dialing so publishers fail fast and fall back
	// to their own retry loop instead of blocking on the reconnect.
	for !p.closed.Load() {
		if p.connect() == nil {
			slog.Info("successfully reconnected to rabbitmq")
			return
		}
		time.Sleep(RetryDelay * 10)
	}
}

func (p *RabbitMQDispatcher) publishOnce(ctx context.Context, queue string, msg amqp.Publishing) error {
	p.connLock.RLock()
	channel := p.channel
	p.connLock.RUnlock()

	if channel == nil || channel.IsClosed() {
		return ErrConnectionClosed
	}

	confirm, err := channel.PublishWithDeferredConfirmWithContext(ctx,
		"",    // exchange (default)
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	if confirm == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("no publisher confirm for %s: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message for %s", queue)
	}
	return nil
}

func (p *RabbitMQDispatcher) Publish(ctx context.Context, queue string, msg models.TaskMessage) error {
	if p.closed.Load() {
		return ErrConnectionClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", queue, err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.TaskId,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	var lastErr error
	for attempt := 1; attempt <= p.publishAttempts; attempt++ {
		if lastErr = p.publishOnce(ctx, queue, publishing); lastErr == nil {
			slog.Info("task published", "queue", queue, "task_id", msg.TaskId, "attempt", attempt)
			return nil
		}

		slog.Warn("failed to publish task", "queue", queue, "task_id", msg.TaskId, "attempt", attempt, "error", lastErr)
		if attempt == p.publishAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(p.retryDelay):
		}
	}

	return fmt.Errorf("failed to publish to %s after %d attempts: %w", queue, p.publishAttempts, lastErr)
}

func (p *RabbitMQDispatcher) Close() {
	p.destructor.Do(func() {
		p.closed.Store(true)

		p.connLock.Lock()
		defer p.connLock.Unlock()

		if p.conn == nil {
			return
		}
		if err := p.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	})
}
