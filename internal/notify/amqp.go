package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/propbase/propbase/internal/config"
	"github.com/propbase/propbase/pkg/telemetry"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

// New returns the AMQP emitter when a broker URL is configured and the
// no-op emitter otherwise, so callers never branch on configuration.
func New(p Params) Emitter {
	log := p.Log.Named("notify.emitter")
	if p.Config.AMQPURL == "" {
		log.Info("no AMQP url configured, notifications disabled")
		return &noopEmitter{}
	}
	return &amqpEmitter{
		url:     p.Config.AMQPURL,
		queue:   p.Config.NotificationQueue,
		log:     log,
		metrics: p.Metrics,
	}
}

func registerHooks(lc fx.Lifecycle, emitter Emitter) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return emitter.Close()
		},
	})
}

var Module = fx.Module("notify",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)

// amqpEmitter publishes persistent JSON messages to a durable queue on
// the default exchange. The connection is dialed lazily and reused;
// a broken channel is dropped and redialed on the next Emit.
type amqpEmitter struct {
	url     string
	queue   string
	log     *zap.Logger
	metrics *telemetry.Metrics

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (e *amqpEmitter) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		e.log.Error("marshal event", zap.String("event", event.Name), zap.Error(err))
		e.metrics.ObserveNotification(event.Name, "error")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.channel()
	if err != nil {
		e.log.Warn("broker unavailable, event dropped",
			zap.String("event", event.Name),
			zap.Int64("property_id", int64(event.PropertyID)),
			zap.Error(err),
		)
		e.metrics.ObserveNotification(event.Name, "error")
		return
	}

	err = ch.PublishWithContext(ctx, "", e.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		e.log.Warn("publish failed, event dropped",
			zap.String("event", event.Name),
			zap.Int64("property_id", int64(event.PropertyID)),
			zap.Error(err),
		)
		e.reset()
		e.metrics.ObserveNotification(event.Name, "error")
		return
	}
	e.metrics.ObserveNotification(event.Name, "ok")
}

func (e *amqpEmitter) channel() (*amqp.Channel, error) {
	if e.ch != nil && !e.ch.IsClosed() {
		return e.ch, nil
	}
	e.reset()

	conn, err := amqp.Dial(e.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(e.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	e.conn = conn
	e.ch = ch
	return ch, nil
}

func (e *amqpEmitter) reset() {
	if e.ch != nil {
		_ = e.ch.Close()
		e.ch = nil
	}
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
}

func (e *amqpEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	return nil
}

type noopEmitter struct{}

func (*noopEmitter) Emit(context.Context, Event) {}
func (*noopEmitter) Close() error                { return nil }
