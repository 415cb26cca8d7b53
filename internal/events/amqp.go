package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeKind = "topic"
	dialTimeout  = 10 * time.Second
)

var ErrInvalidBrokerURL = errors.New("invalid_broker_url")

// AMQPPublisher publishes JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
	now      func() time.Time
}

func NewAMQPPublisher(rawURL, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	brokerURL, err := sanitizeBrokerURL(rawURL)
	if err != nil {
		return nil, err
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		return nil, fmt.Errorf("%w: exchange is required", ErrInvalidBrokerURL)
	}

	conn, err := amqp.DialConfig(brokerURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      log.Named("events.amqp"),
		now:      time.Now,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// one reopen attempt for a channel closed by the broker
	p.log.Warn("publish failed, reopening channel",
		zap.String("routing_key", routingKey),
		zap.Error(err),
	)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	if exErr := declareExchange(ch, p.exchange); exErr != nil {
		ch.Close()
		return errors.Join(err, exErr)
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil)
}

func sanitizeBrokerURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), `"'`)
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBrokerURL, err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", fmt.Errorf("%w: scheme must be amqp or amqps", ErrInvalidBrokerURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidBrokerURL)
	}
	return clean, nil
}
