// Package wrds queries a WRDS-style research data warehouse over postgres:
// quarterly fundamentals, monthly security prices, and the identifier link
// history.
package wrds

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/linker"
)

// Config configures the warehouse client.
type Config struct {
	URL          string        `mapstructure:"database_url"`
	QueryTimeout time.Duration `mapstructure:"-"`
}

// Querier abstracts the warehouse for testing.
type Querier interface {
	QuarterlyFundamentals(ctx context.Context, q RangeQuery) (*frame.Dataset, error)
	MonthlyPrices(ctx context.Context, q RangeQuery) (*frame.Dataset, error)
	LinkHistory(ctx context.Context) ([]linker.Link, error)
	Close()
}

// RangeQuery bounds a pull by date range and an optional identifier list.
// An empty ID list pulls the full cross-section.
type RangeQuery struct {
	From time.Time
	To   time.Time
	IDs  []string
}

// pool defines the minimal database pool interface used by Client.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Client queries the research data warehouse.
type Client struct {
	pool pool
	cfg  Config
}

// Ensure Client implements Querier.
var _ Querier = (*Client)(nil)

// New creates a warehouse client with its own connection pool.
func New(ctx context.Context, cfg Config) (*Client, error) {
	p, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "wrds: connect")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "wrds: ping")
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	return &Client{pool: p, cfg: cfg}, nil
}

// NewFromPool creates a client from an existing pool. The client does NOT
// own the pool; Close() is a no-op.
func NewFromPool(p *pgxpool.Pool, cfg Config) *Client {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	return &Client{pool: &sharedPool{Pool: p}, cfg: cfg}
}

// newWithPool is the test seam: any pool implementation, shared ownership.
func newWithPool(p pool, cfg Config) *Client {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	return &Client{pool: p, cfg: cfg}
}

// sharedPool wraps pgxpool.Pool with a no-op Close so a shared connection
// is never closed from here.
type sharedPool struct {
	*pgxpool.Pool
}

func (s *sharedPool) Close() {}

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

func (c *Client) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.QueryTimeout)
}
