// Package client is the entry point of the SDK. A Client owns the
// configuration, logger, transport and request event bus, and hands out
// query builders bound to a table.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-kikapu/core/config"
	"github.com/asaidimu/go-kikapu/core/query"
	"github.com/asaidimu/go-kikapu/core/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterSubscriptionOptions describes a callback for one request event type.
type RegisterSubscriptionOptions struct {
	Event       transport.RequestEventType `json:"event"`
	Label       *string                    `json:"label,omitempty"`
	Description *string                    `json:"description,omitempty"`
	Callback    transport.EventCallback    `json:"-"`
}

// SubscriptionInfo describes an active subscription.
type SubscriptionInfo struct {
	ID          string                     `json:"id"`
	Event       transport.RequestEventType `json:"event"`
	Label       *string                    `json:"label,omitempty"`
	Description *string                    `json:"description,omitempty"`
	Unsubscribe func()                     `json:"-"`
}

type options struct {
	logger     *zap.Logger
	httpClient transport.Doer
	transport  transport.Transport
}

// Option customises a Client.
type Option func(*options)

// WithLogger sets the logger shared by the client, its transport and builders.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the *http.Client used by the HTTP transport.
func WithHTTPClient(doer transport.Doer) Option {
	return func(o *options) { o.httpClient = doer }
}

// WithTransport bypasses the HTTP transport entirely. Request events are only
// emitted by the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// Client is safe for concurrent use; the builders it returns are not.
type Client struct {
	cfg           config.Config
	logger        *zap.Logger
	transport     transport.Transport
	bus           *events.TypedEventBus[transport.RequestEvent]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// New validates cfg and wires the transport and event bus.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: config is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
		if cfg.Debug {
			dev, err := zap.NewDevelopment()
			if err != nil {
				return nil, fmt.Errorf("could not create debug logger: %w", err)
			}
			logger = dev
		}
	}

	bus, err := events.NewTypedEventBus[transport.RequestEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	t := o.transport
	if t == nil {
		t, err = transport.NewHTTPTransport(transport.Options{
			BaseURL:    cfg.BaseURL,
			BasePath:   cfg.BasePath,
			APIKey:     cfg.APIKey,
			TenantID:   cfg.TenantID,
			Timeout:    cfg.Timeout,
			HTTPClient: o.httpClient,
			Logger:     logger.Named("transport"),
			Bus:        bus,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:           *cfg,
		logger:        logger,
		transport:     t,
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// NewFromEnv loads the configuration with config.Load and creates a Client.
func NewFromEnv(dirs []string, opts ...Option) (*Client, error) {
	cfg, err := config.Load(dirs...)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Table returns a fresh query builder for name.
func (c *Client) Table(name string) *query.Builder {
	return query.New(name, c.transport, c.logger.Named("query"))
}

// Analytics returns an analytics sub-builder for name.
func (c *Client) Analytics(name string) *query.Analytics {
	return query.NewAnalytics(name, c.transport, c.logger.Named("analytics"))
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() config.Config {
	return c.cfg
}

// RegisterSubscription registers a callback for a request event type. It returns
// a unique ID that can be used to unregister the subscription later.
func (c *Client) RegisterSubscription(opts RegisterSubscriptionOptions) (string, error) {
	if opts.Callback == nil {
		return "", errors.New("client: subscription callback is required")
	}
	switch opts.Event {
	case transport.RequestStart, transport.RequestSuccess, transport.RequestFailed:
	default:
		return "", fmt.Errorf("client: unknown event %q", opts.Event)
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	callback := opts.Callback
	unsubscribe := c.bus.Subscribe(string(opts.Event), func(ctx context.Context, event transport.RequestEvent) error {
		return callback(ctx, event)
	})
	id := uuid.New().String()

	c.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       opts.Event,
		Label:       opts.Label,
		Description: opts.Description,
		Unsubscribe: unsubscribe,
	}
	c.logger.Debug("Registered subscription", zap.String("id", id), zap.String("event", string(opts.Event)))
	return id, nil
}

// UnregisterSubscription removes a subscription by its ID.
func (c *Client) UnregisterSubscription(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if info, ok := c.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(c.subscriptions, id)
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (c *Client) Subscriptions() []SubscriptionInfo {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}

// Close removes every subscription and flushes the logger.
func (c *Client) Close() error {
	c.subMu.Lock()
	for id, info := range c.subscriptions {
		info.Unsubscribe()
		delete(c.subscriptions, id)
	}
	c.subMu.Unlock()

	_ = c.logger.Sync()
	return nil
}
