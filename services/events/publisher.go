package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mailflux/mailflux/dto"
	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/models"
)

const (
	// ExchangeEmailEvents is the fanout exchange lifecycle events land on.
	ExchangeEmailEvents = "mailflux-email-events"

	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// RabbitMQPublisher mirrors every inserted email event onto a fanout exchange
// for downstream consumers. Publishing is fire-and-forget: the send and
// tracking paths never wait on, or fail because of, the broker.
type RabbitMQPublisher struct {
	url             string
	log             logger.Logger
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger) (interfaces.EventsPublisher, error) {
	publisher := &RabbitMQPublisher{
		url: rabbitmqURL,
		log: log,
	}
	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to rabbitmq")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open publish channel")
	}

	if err := channel.ExchangeDeclare(ExchangeEmailEvents, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return errors.Wrap(err, "failed to declare events exchange")
	}

	r.connection = conn
	r.publishChannel = channel

	go r.watchConnection(conn)
	return nil
}

// watchConnection reconnects with capped backoff after the broker drops us.
func (r *RabbitMQPublisher) watchConnection(conn *amqp091.Connection) {
	closed := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if closed == nil {
		return
	}
	r.log.Warnf("rabbitmq connection lost: %v", closed)

	backoff := DefaultReconnectBackoff
	for {
		time.Sleep(backoff)
		if err := r.connect(); err == nil {
			r.log.Info("rabbitmq connection restored")
			return
		}
		backoff *= 2
		if backoff > DefaultMaxReconnectBackoff {
			backoff = DefaultMaxReconnectBackoff
		}
	}
}

func (r *RabbitMQPublisher) PublishEmailEvent(ctx context.Context, event *models.EmailEvent) {
	notification := dto.EmailEventNotification{
		EventID:        event.ID,
		UserID:         event.UserID,
		MessageID:      event.MessageID,
		EventType:      event.EventType,
		RecipientEmail: event.RecipientEmail,
		SendingDomain:  event.SendingDomain,
		OccurredAt:     event.CreatedAt,
	}

	go func() {
		if err := r.publish(notification); err != nil {
			r.log.Warnf("failed to publish %s event for %s: %v", event.EventType, event.MessageID, err)
		}
	}()
}

func (r *RabbitMQPublisher) publish(notification dto.EmailEventNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return errors.Wrap(err, "failed to encode event notification")
	}

	publishCtx, cancel := context.WithTimeout(context.Background(), DefaultPublishTimeout)
	defer cancel()

	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}

	return r.publishChannel.PublishWithContext(
		publishCtx,
		ExchangeEmailEvents,
		notification.EventType.String(),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    notification.EventID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (r *RabbitMQPublisher) Close() {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.publishChannel != nil {
		r.publishChannel.Close()
	}
	if r.connection != nil {
		r.connection.Close()
	}
}
