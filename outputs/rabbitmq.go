package outputs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/furdarius/rabbitroutine"
	"github.com/kesherwa/relay"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

func init() {
	relay.RegisterSink("rabbitmq", func(config *relay.Config) (relay.Sink, error) {
		return NewRabbitSink(config.RabbitmqURL, config.RabbitmqRetryPubAttempts, config.RabbitmqRetryPubDelay, config.OutputExchangeName)
	})
}

// RabbitSink publishes each fanout as a single message on a topic exchange, so a fanout is
// either published whole or not at all
type RabbitSink struct {
	publisher rabbitroutine.Publisher
	exchange  string
	cancel    context.CancelFunc
}

// NewRabbitSink creates a new sink publishing to the passed in exchange with publish retry and reconnect
func NewRabbitSink(url string, retryAttempts int, retryDelay int, exchange string) (*RabbitSink, error) {
	cconn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}
	defer cconn.Close()

	ch, err := cconn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open a channel to rabbitmq")
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to declare exchange for output publisher")
	}

	conn := rabbitroutine.NewConnector(rabbitroutine.Config{
		ReconnectAttempts: 1000,
		Wait:              2 * time.Second,
	})

	log := logrus.WithField("comp", "rabbitmq_sink")

	conn.AddRetriedListener(func(r rabbitroutine.Retried) {
		log.Infof("try to connect to RabbitMQ: attempt=%d, error=\"%v\"", r.ReconnectAttempt, r.Error)
	})

	conn.AddDialedListener(func(_ rabbitroutine.Dialed) {
		log.Info("RabbitMQ connection successfully established")
	})

	conn.AddAMQPNotifiedListener(func(n rabbitroutine.AMQPNotified) {
		log.Errorf("RabbitMQ error received: %v", n.Error)
	})

	pool := rabbitroutine.NewPool(conn)
	ensurePub := rabbitroutine.NewEnsurePublisher(pool)
	pub := rabbitroutine.NewRetryPublisher(
		ensurePub,
		rabbitroutine.PublishMaxAttemptsSetup(uint(retryAttempts)),
		rabbitroutine.PublishDelaySetup(
			rabbitroutine.LinearDelay(time.Duration(retryDelay)*time.Millisecond),
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := conn.Dial(ctx, url); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("failed to establish RabbitMQ connection")
		}
	}()

	return &RabbitSink{publisher: pub, exchange: exchange, cancel: cancel}, nil
}

// NewRabbitSinkWithPublisher creates a sink publishing through the passed in publisher
func NewRabbitSinkWithPublisher(publisher rabbitroutine.Publisher, exchange string) *RabbitSink {
	return &RabbitSink{publisher: publisher, exchange: exchange, cancel: func() {}}
}

// Deliver publishes the passed in fanout
func (s *RabbitSink) Deliver(ctx context.Context, fanout *relay.Fanout) error {
	msg, err := NewMessage(fanout)
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "unable to marshal output message")
	}

	err = s.publisher.Publish(
		ctx,
		s.exchange,
		RoutingKey(fanout.Channel()),
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.DeliveryID,
			Timestamp:    msg.DeliveredOn,
			Body:         body,
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to publish output message")
	}
	return nil
}

// Close stops reconnecting to the broker
func (s *RabbitSink) Close() error {
	s.cancel()
	return nil
}
