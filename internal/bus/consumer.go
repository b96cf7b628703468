// Package bus consumes invalidation events from the message broker. The
// coordinator only subscribes; publication belongs to the generation pipeline.
package bus

import (
	"context"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/infinitune/roomserver/internal/utils"
)

// Routing keys the consumer binds to. settings events also arrive on the
// exchange but carry nothing this service interprets.
const (
	BindingSongs     = "songs.*"
	BindingPlaylists = "playlists"
)

// Handler receives each consumed event. Implementations must not block for
// long; slow handlers delay every subsequent event.
type Handler interface {
	HandleBusEvent(ctx context.Context, routingKey string, body []byte)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, routingKey string, body []byte)

// HandleBusEvent calls f.
func (f HandlerFunc) HandleBusEvent(ctx context.Context, routingKey string, body []byte) {
	f(ctx, routingKey, body)
}

// Options configures the consumer.
type Options struct {
	URL          string
	Exchange     string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Consumer subscribes to the invalidation exchange over an exclusive
// transient queue and dispatches events to a handler, reconnecting forever
// with jittered exponential backoff.
type Consumer struct {
	opts    Options
	handler Handler
	logger  *utils.Logger

	// OnReconnect, when set, is called once per connection attempt after the
	// first. Used for metrics.
	OnReconnect func()
}

// NewConsumer creates a consumer. Run must be called to start it.
func NewConsumer(opts Options, handler Handler, logger *utils.Logger) *Consumer {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Consumer{
		opts:    opts,
		handler: handler,
		logger:  logger.Named("bus"),
	}
}

// Run consumes until the context is cancelled. Connection failures surface
// into the reconnect loop; events published while disconnected are not
// replayed, the next consumed event re-fetches full state anyway.
func (c *Consumer) Run(ctx context.Context) {
	backoff := c.opts.ReconnectMin
	first := true

	for {
		if ctx.Err() != nil {
			return
		}
		if !first && c.OnReconnect != nil {
			c.OnReconnect()
		}
		first = false

		started := time.Now()
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		// A connection that outlived the backoff cap counts as healthy.
		if time.Since(started) > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMin
		}
		if err != nil {
			c.logger.Warn("bus connection lost", "err", err, "retryIn", backoff.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMax
		}
	}
}

// consumeOnce holds one connection open and pumps deliveries until it drops.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.opts.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.opts.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return err
	}

	// Exclusive auto-delete queue: each coordinator instance sees every event.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	for _, binding := range []string{BindingSongs, BindingPlaylists} {
		if err := ch.QueueBind(q.Name, binding, c.opts.Exchange, false, nil); err != nil {
			return err
		}
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("bus connected", "exchange", c.opts.Exchange, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handler.HandleBusEvent(ctx, d.RoutingKey, d.Body)
		}
	}
}

// jitter spreads a delay uniformly over [d/2, d) so a fleet of consumers does
// not reconnect in lockstep.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
