package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fundingarb/livesync/pkg/feed"
)

// unlistenTimeout bounds the UNLISTEN issued when a channel closes.
const unlistenTimeout = 2 * time.Second

// Postgres is a Transport backed by PostgreSQL LISTEN/NOTIFY.
// Each channel holds one pooled connection for its lifetime.
type Postgres struct {
	pool      *pgxpool.Pool
	keepAlive KeepAliveConfig
	logger    *slog.Logger
}

// PostgresOption configures a Postgres transport.
type PostgresOption func(*Postgres)

// WithKeepAlive sets the idle ping configuration.
func WithKeepAlive(cfg KeepAliveConfig) PostgresOption {
	return func(p *Postgres) { p.keepAlive = cfg }
}

// WithPostgresLogger sets the logger.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(p *Postgres) { p.logger = logger }
}

// NewPostgres creates a LISTEN/NOTIFY transport on pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		pool:      pool,
		keepAlive: DefaultKeepAliveConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenChannel starts listening for spec in the background.
func (p *Postgres) OpenChannel(ctx context.Context, spec ChannelSpec, h Handler) (Channel, error) {
	filter, err := feed.ParseFilter(spec.Predicate)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := &pgChannel{
		spec:      spec,
		filter:    filter,
		handler:   h,
		keepAlive: NewKeepAlive(p.keepAlive),
		logger:    p.logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go ch.run(ctx, p.pool)
	return ch, nil
}

// pgChannel is one LISTEN session.
type pgChannel struct {
	spec      ChannelSpec
	filter    feed.Filter
	handler   Handler
	keepAlive *KeepAlive
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops listening. It does not wait for the session goroutine, so it
// is safe to call from inside a handler callback; use Done to wait.
func (c *pgChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return nil
}

// Done is closed once the session goroutine has released its connection.
func (c *pgChannel) Done() <-chan struct{} {
	return c.done
}

func (c *pgChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *pgChannel) run(ctx context.Context, pool *pgxpool.Pool) {
	defer close(c.done)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		c.fail(ctx, fmt.Errorf("transport: acquire connection: %w", err))
		return
	}
	defer conn.Release()

	ident := pgx.Identifier{c.spec.Name()}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+ident); err != nil {
		c.fail(ctx, fmt.Errorf("transport: listen %s: %w", c.spec.Name(), err))
		return
	}
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN "+ident); err != nil && c.logger != nil {
			c.logger.Debug("pgChannel: unlisten failed", "channel", c.spec.Name(), "error", err)
		}
	}()

	if c.isClosed() {
		return
	}
	if c.logger != nil {
		c.logger.Debug("pgChannel: listening", "channel", c.spec.Name())
	}
	c.handler.OnOpen()

	for {
		waitCtx, cancelWait := context.WithTimeout(ctx, c.keepAlive.Interval())
		n, err := conn.Conn().WaitForNotification(waitCtx)
		cancelWait()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if pgconn.Timeout(err) {
				if err := c.keepAlive.Check(ctx, conn.Ping); err != nil {
					c.fail(ctx, err)
					return
				}
				continue
			}
			c.fail(ctx, fmt.Errorf("transport: wait for notification: %w", err))
			return
		}

		c.keepAlive.MarkActive()
		c.deliver([]byte(n.Payload))
	}
}

// deliver applies the event mask and predicate client-side. Payloads that
// cannot be decoded are passed through so the subscription can report them.
func (c *pgChannel) deliver(raw []byte) {
	if c.isClosed() {
		return
	}
	if ev, err := feed.DecodePayload(raw); err == nil {
		if !c.spec.Events.Has(ev.Kind) || !c.filter.MatchEvent(ev) {
			return
		}
	}
	c.handler.OnMessage(raw)
}

func (c *pgChannel) fail(ctx context.Context, err error) {
	if ctx.Err() != nil || c.isClosed() {
		return
	}
	if c.logger != nil {
		c.logger.Debug("pgChannel: channel failed", "channel", c.spec.Name(), "error", err)
	}
	c.handler.OnError(err)
}

// PostgresLoader loads initial snapshots of resources.
type PostgresLoader struct {
	pool    *pgxpool.Pool
	schema  string
	queries map[string]string
}

// LoaderOption configures a PostgresLoader.
type LoaderOption func(*PostgresLoader)

// WithSchema sets the schema used by default queries.
func WithSchema(schema string) LoaderOption {
	return func(l *PostgresLoader) { l.schema = schema }
}

// WithQuery overrides the snapshot query for one resource, e.g. to call a
// function returning the latest funding rate per coin.
func WithQuery(resource, sql string) LoaderOption {
	return func(l *PostgresLoader) { l.queries[resource] = sql }
}

// NewPostgresLoader creates a snapshot loader on pool.
func NewPostgresLoader(pool *pgxpool.Pool, opts ...LoaderOption) *PostgresLoader {
	l := &PostgresLoader{
		pool:    pool,
		schema:  feed.DefaultSchema,
		queries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Query returns the SQL used to load resource.
func (l *PostgresLoader) Query(resource string) string {
	if q, ok := l.queries[resource]; ok {
		return q
	}
	return "SELECT * FROM " + pgx.Identifier{l.schema, resource}.Sanitize()
}

// Load returns every row of resource.
func (l *PostgresLoader) Load(ctx context.Context, resource string) ([]feed.Record, error) {
	rows, err := l.pool.Query(ctx, l.Query(resource))
	if err != nil {
		return nil, fmt.Errorf("transport: load %s: %w", resource, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("transport: load %s: %w", resource, err)
	}

	records := make([]feed.Record, len(maps))
	for i, m := range maps {
		records[i] = normalizeRow(m)
	}
	return records, nil
}

// normalizeRow converts driver types into the values the same row carries
// when it arrives as a JSON notification, so keys and sort fields compare
// equal across the snapshot and the feed.
func normalizeRow(m map[string]any) feed.Record {
	r := make(feed.Record, len(m))
	for k, v := range m {
		if n, ok := v.(pgtype.Numeric); ok {
			r[k] = numericValue(n)
			continue
		}
		r[k] = feed.NormalizeValue(v)
	}
	return r
}

// numericValue returns an integral numeric as int64, or json.Number when
// it does not fit, and anything else as float64. SQL NULL becomes nil.
func numericValue(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return math.NaN()
	}
	switch n.InfinityModifier {
	case pgtype.Infinity:
		return math.Inf(1)
	case pgtype.NegativeInfinity:
		return math.Inf(-1)
	}

	v := new(big.Rat)
	if n.Int != nil {
		v.SetInt(n.Int)
	}
	if n.Exp != 0 {
		exp := int64(n.Exp)
		if exp < 0 {
			exp = -exp
		}
		scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
		if n.Exp > 0 {
			v.Mul(v, scale)
		} else {
			v.Quo(v, scale)
		}
	}

	if v.IsInt() {
		if i := v.Num(); i.IsInt64() {
			return i.Int64()
		}
		return json.Number(v.Num().String())
	}
	f, _ := v.Float64()
	return f
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*Postgres)(nil)
	_ Channel   = (*pgChannel)(nil)
)
