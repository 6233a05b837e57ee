//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"wall_rewriter/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PostProcessed() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-processed",
		RoutingKey: "test-routing-key-processed",
		QueueName:  "test-queue-processed",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	pub.PostProcessed(s.ctx, domain.Post{
		ID:       123,
		SourceID: 42,
		Date:     1700000000,
		Original: "original text",
		Variants: []string{"rewritten text"},
	})

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(EventPostProcessed, msg.Type)

	var received EventMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(EventPostProcessed, received.Event)
	s.Require().NotNil(received.Post)
	s.Equal(int64(123), received.Post.ID)
	s.Equal(int64(42), received.Post.SourceID)
	s.Equal([]string{"rewritten text"}, received.Post.Variants)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_NewPostDetected() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-new",
		RoutingKey: "test-routing-key-new",
		QueueName:  "test-queue-new",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	pub.NewPostDetected(s.ctx, domain.Post{ID: 456, SourceID: 42, Original: "fresh"})

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received EventMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(EventNewPost, received.Event)
	s.Require().NotNil(received.Post)
	s.Empty(received.Post.Variants)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Error() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-error",
		RoutingKey: "test-routing-key-error",
		QueueName:  "test-queue-error",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	pub.Error(s.ctx, domain.NewError(domain.CodeFeedFetch, "fetch page", nil).WithSource(42))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received EventMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(EventError, received.Event)
	s.Require().NotNil(received.Error)
	s.Equal(domain.CodeFeedFetch, received.Error.Code)
	s.Equal(int64(42), received.Error.SourceID)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-persist",
		RoutingKey: "test-routing-key-persist",
		QueueName:  "test-queue-persist",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	err = pub.Publish(s.ctx, postMessage(EventPostProcessed, domain.Post{ID: 999}))
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
