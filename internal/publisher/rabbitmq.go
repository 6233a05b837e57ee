package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"wall_rewriter/internal/domain"
)

const defaultPublishTimeout = 5 * time.Second

const (
	EventNewPost       = "new_post_detected"
	EventPostProcessed = "post_processed"
	EventError         = "error"
)

// RabbitMQ forwards pipeline events to an exchange as persistent JSON
// messages. Publishing is bounded by a timeout so a slow broker cannot
// stall a sweep; failures are logged and dropped.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
	Timeout    time.Duration
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		timeout:    timeout,
		logger:     logger.With("component", "publisher"),
	}, nil
}

type ErrorPayload struct {
	Code     domain.Code `json:"code"`
	Message  string      `json:"message"`
	SourceID int64       `json:"sourceId,omitempty"`
	PostID   int64       `json:"postId,omitempty"`
}

type EventMessage struct {
	Event     string        `json:"event"`
	Post      *domain.Post  `json:"post,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func postMessage(event string, post domain.Post) EventMessage {
	return EventMessage{Event: event, Post: &post, Timestamp: time.Now().UTC()}
}

func errorMessage(err *domain.Error) EventMessage {
	return EventMessage{
		Event: EventError,
		Error: &ErrorPayload{
			Code:     err.Code,
			Message:  err.Error(),
			SourceID: err.SourceID,
			PostID:   err.PostID,
		},
		Timestamp: time.Now().UTC(),
	}
}

func (r *RabbitMQ) NewPostDetected(ctx context.Context, post domain.Post) {
	r.forward(ctx, postMessage(EventNewPost, post))
}

func (r *RabbitMQ) PostProcessed(ctx context.Context, post domain.Post) {
	r.forward(ctx, postMessage(EventPostProcessed, post))
}

func (r *RabbitMQ) Error(ctx context.Context, err *domain.Error) {
	r.forward(ctx, errorMessage(err))
}

func (r *RabbitMQ) forward(ctx context.Context, msg EventMessage) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.Publish(ctx, msg); err != nil {
		r.logger.Warn("failed to publish event", "event", msg.Event, "error", err)
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, msg EventMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         msg.Event,
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published event", "event", msg.Event)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
