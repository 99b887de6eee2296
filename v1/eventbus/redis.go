package eventbus

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	weberrors "github.com/mirkobrombin/go-weblocks/v1/errors"
)

const (
	redisBusTimeout    = 5 * time.Second
	redisChannelPrefix = "locks:"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-weblocks/v1/eventbus")

// redisPayload is the wire form of an Event. The ID deduplicates deliveries
// when several subscriptions share one channel.
type redisPayload struct {
	ID    string `json:"id"`
	Event Event  `json:"event"`
}

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan Event
}

// RedisBus implements Bus using Redis pub/sub. Each resource name maps to
// one channel under the locks: prefix.
type RedisBus struct {
	client *redis.Client

	mu        sync.Mutex
	subs      map[string]*redisSubscription
	processed map[string]struct{}
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewRedisBus returns a new RedisBus using the provided client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client:    client,
		subs:      make(map[string]*redisSubscription),
		processed: make(map[string]struct{}),
	}
}

// Close closes all subscriptions.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.pubsub.Close()
		for _, ch := range sub.chans {
			close(ch)
		}
	}
	b.subs = make(map[string]*redisSubscription)
	return nil
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	ctx, span := tracer.Start(ctx, "RedisBus.Publish", trace.WithAttributes(
		attribute.String("weblocks.bus.resource", ev.Resource),
		attribute.String("weblocks.bus.kind", string(ev.Kind)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return weberrors.ErrTimeout
		}
		return err
	}

	data, err := json.Marshal(redisPayload{ID: uuid.NewString(), Event: ev})
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
	defer cancel()
	if err := b.client.Publish(cctx, redisChannelPrefix+ev.Resource, data).Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return weberrors.ErrTimeout
		}
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, resource string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, weberrors.ErrTimeout
		}
		return nil, err
	}

	ch := make(chan Event, 16)
	channel := redisChannelPrefix + resource

	b.mu.Lock()
	sub, ok := b.subs[resource]
	if ok {
		sub.chans = append(sub.chans, ch)
		b.mu.Unlock()
	} else {
		b.mu.Unlock()
		cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
		ps := b.client.Subscribe(cctx, channel)
		_, err := ps.Receive(cctx)
		cancel()
		if err != nil {
			_ = ps.Close()
			if stdErrors.Is(err, context.DeadlineExceeded) {
				return nil, weberrors.ErrTimeout
			}
			return nil, err
		}
		b.mu.Lock()
		sub = &redisSubscription{pubsub: ps, chans: []chan Event{ch}}
		b.subs[resource] = sub
		b.mu.Unlock()
		go b.dispatch(resource, sub)
	}

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), resource, ch)
	}()
	return ch, nil
}

func (b *RedisBus) dispatch(resource string, sub *redisSubscription) {
	for msg := range sub.pubsub.Channel() {
		var payload redisPayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			continue
		}
		b.mu.Lock()
		if _, ok := b.processed[payload.ID]; ok {
			b.mu.Unlock()
			continue
		}
		b.processed[payload.ID] = struct{}{}
		chans := append([]chan Event(nil), sub.chans...)
		b.mu.Unlock()

		for _, ch := range chans {
			select {
			case ch <- payload.Event:
				b.delivered.Add(1)
			default:
			}
		}
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *RedisBus) Unsubscribe(ctx context.Context, resource string, ch <-chan Event) error {
	if err := ctx.Err(); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return weberrors.ErrTimeout
		}
		return err
	}
	b.mu.Lock()
	sub := b.subs[resource]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, resource)
		b.mu.Unlock()
		cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
		defer cancel()
		_ = sub.pubsub.Unsubscribe(cctx, redisChannelPrefix+resource)
		if err := sub.pubsub.Close(); err != nil {
			if stdErrors.Is(err, redis.ErrClosed) {
				return weberrors.ErrConnectionClosed
			}
			return err
		}
		return nil
	}
	b.mu.Unlock()
	return nil
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
