package redisproto

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/redisproto/resp"
)

const (
	defaultMaxPoolSize = 10
	defaultDialTimeout = 5 * time.Second
	healthCheckTimeout = 5 * time.Second
)

// Config configures the client and the per-server connection pools.
type Config struct {
	// MaxSize is the maximum number of connections per server.
	// Defaults to 10.
	MaxSize int32

	// MaxConnLifetime is the maximum lifetime of a connection.
	// Optional: no maximum lifetime if zero.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum idle time of a connection.
	// Optional: no maximum idle time if zero.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is the interval between background health checks.
	// Optional: no background health checks if zero.
	HealthCheckInterval time.Duration

	// Dialer is used to open new connections.
	// Optional: net.Dialer with a 5 second timeout by default.
	Dialer *net.Dialer

	// NewPool builds the connection pool for one server.
	// Optional: NewChannelPool by default. NewPuddlePool is the alternative.
	NewPool func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)

	// SelectServer picks the server for a key.
	// Optional: DefaultServerSelector by default.
	SelectServer ServerSelector

	// NewCircuitBreaker builds the circuit breaker for one server.
	// Optional: no circuit breaker if nil. See NewCircuitBreakerConfig.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[*resp.Response]

	// constructor overrides the connection constructor, for testing.
	constructor func(ctx context.Context) (*Connection, error)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxPoolSize
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: defaultDialTimeout}
	}
	if c.NewPool == nil {
		c.NewPool = NewChannelPool
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultServerSelector
	}
	return c
}

// Client routes requests to a set of servers, with one connection pool per
// server. Keys are mapped to servers by the configured ServerSelector.
//
// The typed commands (Get, Set, ...) are implemented by Commands on top of
// Do. Raw pipelines can be built with resp.Request and executed with Do.
type Client struct {
	servers      Servers
	selectServer ServerSelector

	// Pool configuration, same for all servers.
	config Config

	mu     sync.RWMutex
	pools  map[string]*ServerPool
	closed bool

	commands *Commands

	stopHealthCheck chan struct{}

	stats *clientStatsCollector
}

var (
	_ Querier       = (*Client)(nil)
	_ Executor      = (*Client)(nil)
	_ BatchExecutor = (*Client)(nil)
)

// NewClient creates a client for the given servers.
func NewClient(servers Servers, config Config) (*Client, error) {
	if servers == nil || len(servers.List()) == 0 {
		return nil, ErrNoServers
	}

	config = config.withDefaults()

	client := &Client{
		servers:         servers,
		selectServer:    config.SelectServer,
		config:          config,
		pools:           make(map[string]*ServerPool),
		stopHealthCheck: make(chan struct{}),
		stats:           newClientStatsCollector(),
	}
	client.commands = NewCommands(client)

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Do executes the request pipeline on the server selected for key.
// The request is sent as a single write and all replies are read back.
func (c *Client) Do(ctx context.Context, key string, req *resp.Request) (*resp.Response, error) {
	c.stats.recordPipeline()

	addr, err := c.selectServerForKey(key)
	if err != nil {
		return nil, err
	}
	pool, err := c.getOrCreatePool(addr)
	if err != nil {
		return nil, err
	}
	return pool.Execute(ctx, req)
}

// DoAddr executes the request pipeline on a specific server, bypassing
// server selection. Useful for commands without a key, like PING.
func (c *Client) DoAddr(ctx context.Context, addr string, req *resp.Request) (*resp.Response, error) {
	c.stats.recordPipeline()

	pool, err := c.getOrCreatePool(addr)
	if err != nil {
		return nil, err
	}
	return pool.Execute(ctx, req)
}

// ServerForKey returns the address of the server selected for key.
func (c *Client) ServerForKey(key string) (string, error) {
	return c.selectServerForKey(key)
}

// Ping checks every configured server and returns the first failure.
func (c *Client) Ping(ctx context.Context) error {
	for _, addr := range c.servers.List() {
		req := &resp.Request{}
		if err := req.Append("PING"); err != nil {
			return err
		}

		rsp, err := c.DoAddr(ctx, addr, req)
		if err != nil {
			return fmt.Errorf("ping %s: %w", addr, err)
		}
		if reply := rsp.Reply(0); reply.IsError() {
			return fmt.Errorf("ping %s: %w", addr, &ServerError{Message: reply.ErrorMessage()})
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	item, err := c.commands.Get(ctx, key)
	if err != nil {
		c.stats.recordError()
		return item, err
	}
	c.stats.recordGet(item.Found)
	return item, nil
}

func (c *Client) Set(ctx context.Context, item Item) error {
	if err := c.commands.Set(ctx, item); err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordSet()
	return nil
}

func (c *Client) Add(ctx context.Context, item Item) error {
	if err := c.commands.Add(ctx, item); err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordAdd()
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.commands.Delete(ctx, key); err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordDelete()
	return nil
}

func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	value, err := c.commands.Increment(ctx, key, delta)
	if err != nil {
		c.stats.recordError()
		return value, err
	}
	c.stats.recordIncrement()
	return value, nil
}

// Stats returns a snapshot of the client operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns a snapshot of every server pool.
func (c *Client) AllPoolStats() []ServerPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, pool := range c.pools {
		stats = append(stats, pool.Stats())
	}
	return stats
}

// Close stops the health check loop and closes all pools. Only the
// first call does anything.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pools := c.pools
	c.pools = make(map[string]*ServerPool)
	c.mu.Unlock()

	if c.config.HealthCheckInterval > 0 {
		close(c.stopHealthCheck)
	}
	for _, pool := range pools {
		pool.Close()
	}
}

func (c *Client) selectServerForKey(key string) (string, error) {
	servers := c.servers.List()
	if len(servers) == 0 {
		return "", ErrNoServers
	}

	index := c.selectServer(key, len(servers))
	if index < 0 || index >= len(servers) {
		index = 0
	}
	return servers[index], nil
}

func (c *Client) getOrCreatePool(addr string) (*ServerPool, error) {
	c.mu.RLock()
	pool, found := c.pools[addr]
	c.mu.RUnlock()
	if found {
		return pool, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have created the pool in the meantime.
	if pool, found = c.pools[addr]; found {
		return pool, nil
	}

	pool, err := NewServerPool(addr, c.config)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = pool
	return pool, nil
}

func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

func (c *Client) checkAllPools() {
	c.mu.RLock()
	pools := make([]*ServerPool, 0, len(c.pools))
	for _, pool := range c.pools {
		pools = append(pools, pool)
	}
	c.mu.RUnlock()

	for _, pool := range pools {
		c.checkPoolConnections(pool)
	}
}

// checkPoolConnections destroys idle connections that outlived
// MaxConnLifetime or MaxConnIdleTime, or that fail a PING.
func (c *Client) checkPoolConnections(pool *ServerPool) {
	for _, res := range pool.pool.AcquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && time.Since(res.CreationTime()) > c.config.MaxConnLifetime {
			res.Destroy()
			continue
		}
		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			res.Destroy()
			continue
		}
		if err := c.healthCheck(res.Value()); err != nil {
			res.Destroy()
			continue
		}
		res.ReleaseUnused()
	}
}

func (c *Client) healthCheck(conn *Connection) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	return conn.Ping(ctx)
}
