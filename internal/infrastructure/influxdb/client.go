package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// Client writes bridge telemetry to an InfluxDB v2 bucket.
//
// Points are batched by the underlying write API; a full batch or the
// flush interval sends them. Asynchronous write failures are counted and
// reported to the SetOnError callback. Once closed, every write is a no-op.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed      atomic.Bool
	writeErrors atomic.Uint64

	cbMu    sync.RWMutex
	onError func(err error)
}

// Connect opens the client and pings the server before accepting writes.
//
// Parameters:
//   - ctx: Bounds the initial ping (10s when ctx carries no deadline)
//   - cfg: InfluxDB configuration from config.yaml
//
// Returns:
//   - *Client: Client ready for writes
//   - error: ErrDisabled if turned off in config, ErrConnectionFailed if the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectTimeout)
		defer cancel()
	}
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.watchWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions maps batch settings onto client options.
// FlushInterval is configured in seconds, the client takes milliseconds.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}
	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * uint(time.Second/time.Millisecond))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

// watchWriteErrors drains the write API's error channel until the client closes it.
func (c *Client) watchWriteErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)

		c.cbMu.RLock()
		callback := c.onError
		c.cbMu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// Close sends buffered points and releases the client. Safe to call twice.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// WriteErrors returns the number of batches the server rejected or that
// could not be delivered.
func (c *Client) WriteErrors() uint64 {
	return c.writeErrors.Load()
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writeAPI.Flush()
}
