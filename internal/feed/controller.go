package feed

import (
	"context"
	"log/slog"
	"sync"
)

// Controller owns the live subscriptions of one client session: at most one
// per Kind. Starting a kind again replaces the previous subscription.
type Controller struct {
	source  Source
	handler func(Event)
	log     *slog.Logger

	mu   sync.Mutex
	subs map[Kind]*active
}

type active struct {
	key  string
	sub  Subscription
	done chan struct{}
}

func NewController(source Source, handler func(Event), log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		source:  source,
		handler: handler,
		log:     log,
		subs:    make(map[Kind]*active),
	}
}

// Start subscribes to kind/key and dispatches its events to the handler.
func (c *Controller) Start(ctx context.Context, kind Kind, key string) error {
	c.Stop(kind)

	sub, err := c.source.Subscribe(ctx, kind, key)
	if err != nil {
		return err
	}

	a := &active{key: key, sub: sub, done: make(chan struct{})}

	c.mu.Lock()
	if prev := c.subs[kind]; prev != nil {
		c.mu.Unlock()
		c.release(prev)
		c.mu.Lock()
	}
	c.subs[kind] = a
	c.mu.Unlock()

	go func() {
		defer close(a.done)
		for evt := range sub.Events() {
			c.handler(evt)
		}
	}()

	c.log.Debug("feed started", slog.String("kind", string(kind)), slog.String("key", key))
	return nil
}

// Stop cancels the subscription of kind. Stopping an inactive kind is a no-op.
func (c *Controller) Stop(kind Kind) {
	c.mu.Lock()
	a := c.subs[kind]
	delete(c.subs, kind)
	c.mu.Unlock()

	if a != nil {
		c.release(a)
	}
}

func (c *Controller) StopAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[Kind]*active)
	c.mu.Unlock()

	for _, a := range subs {
		c.release(a)
	}
}

// Active returns the key currently subscribed for kind.
func (c *Controller) Active(kind Kind) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.subs[kind]
	if !ok {
		return "", false
	}
	return a.key, true
}

func (c *Controller) release(a *active) {
	if err := a.sub.Close(); err != nil {
		c.log.Warn("feed close failed", slog.String("key", a.key), slog.Any("error", err))
	}
	<-a.done
}
