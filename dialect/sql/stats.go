package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syssam/batchql/dialect"
)

// Stats counts the statements executed through a StatsDriver.
type Stats struct {
	Execs    atomic.Int64
	Queries  atomic.Int64
	Slow     atomic.Int64
	Errors   atomic.Int64
	Duration atomic.Int64 // nanoseconds
}

// Snapshot returns the current counts.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Execs:    s.Execs.Load(),
		Queries:  s.Queries.Load(),
		Slow:     s.Slow.Load(),
		Errors:   s.Errors.Load(),
		Duration: time.Duration(s.Duration.Load()),
	}
}

// Reset sets all counts to zero.
func (s *Stats) Reset() {
	s.Execs.Store(0)
	s.Queries.Store(0)
	s.Slow.Store(0)
	s.Errors.Store(0)
	s.Duration.Store(0)
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Execs    int64
	Queries  int64
	Slow     int64
	Errors   int64
	Duration time.Duration
}

// Avg returns the mean statement duration.
func (s StatsSnapshot) Avg() time.Duration {
	n := s.Execs + s.Queries
	if n == 0 {
		return 0
	}
	return s.Duration / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("execs=%d queries=%d duration=%s avg=%s slow=%d errors=%d",
		s.Execs, s.Queries, s.Duration, s.Avg(), s.Slow, s.Errors)
}

// Metrics holds the prometheus collectors updated by a StatsDriver.
type Metrics struct {
	// Statements counts statements by dialect, statement kind and status
	// ("ok" or "error").
	Statements *prometheus.CounterVec
	// Duration observes statement latency in seconds by dialect and kind.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the batchql statement collectors and registers them
// with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchql",
			Name:      "statements_total",
			Help:      "Number of statements executed.",
		}, []string{"dialect", "op", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "batchql",
			Name:      "statement_duration_seconds",
			Help:      "Statement execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dialect", "op"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Statements, m.Duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// SlowStatementHook is called for statements slower than the threshold.
type SlowStatementHook func(ctx context.Context, query string, args []any, d time.Duration)

// StatsDriver wraps a driver and records statement statistics.
type StatsDriver struct {
	dialect.Driver
	stats   *Stats
	metrics *Metrics

	mu        sync.RWMutex
	threshold time.Duration
	hook      SlowStatementHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// It defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold = d }
}

// WithSlowStatementHook sets the function called for slow statements.
func WithSlowStatementHook(h SlowStatementHook) StatsOption {
	return func(s *StatsDriver) { s.hook = h }
}

// WithSlowStatementLog logs slow statements to l at warning level.
func WithSlowStatementLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowStatementHook(func(ctx context.Context, query string, args []any, d time.Duration) {
		l.WarnContext(ctx, "batchql: slow statement", "duration", d, "query", query, "args", len(args))
	})
}

// WithMetrics makes the driver update m.
func WithMetrics(m *Metrics) StatsOption {
	return func(s *StatsDriver) { s.metrics = m }
}

// NewStatsDriver wraps drv.
//
//	m, _ := sql.NewMetrics(prometheus.DefaultRegisterer)
//	drv := sql.NewStatsDriver(base,
//		sql.WithSlowThreshold(200*time.Millisecond),
//		sql.WithSlowStatementLog(logger),
//		sql.WithMetrics(m),
//	)
//	fmt.Println(drv.Stats().Snapshot())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &Stats{},
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the counters of the driver.
func (d *StatsDriver) Stats() *Stats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetSlowThreshold changes the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = t
}

// Exec executes a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, false)
	return err
}

// Query executes a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, true)
	return err
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, drv: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, took time.Duration, err error, isQuery bool) {
	if isQuery {
		d.stats.Queries.Add(1)
	} else {
		d.stats.Execs.Add(1)
	}
	d.stats.Duration.Add(int64(took))
	status := "ok"
	if err != nil {
		d.stats.Errors.Add(1)
		status = "error"
	}
	if m := d.metrics; m != nil {
		name, op := d.Dialect(), statementOp(query)
		m.Statements.WithLabelValues(name, op, status).Inc()
		m.Duration.WithLabelValues(name, op).Observe(took.Seconds())
	}
	d.mu.RLock()
	threshold, hook := d.threshold, d.hook
	d.mu.RUnlock()
	if took > threshold {
		d.stats.Slow.Add(1)
		if hook != nil {
			argv, _ := args.([]any)
			hook(ctx, query, argv, took)
		}
	}
}

// statementOp returns the lower-cased leading keyword of query.
func statementOp(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexAny(query, " \t\n"); i > 0 {
		query = query[:i]
	}
	return strings.ToLower(query)
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	drv *StatsDriver
}

// Exec executes a statement in the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.drv.record(ctx, query, args, time.Since(start), err, false)
	return err
}

// Query executes a query in the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.drv.record(ctx, query, args, time.Since(start), err, true)
	return err
}

// DebugDriver logs every statement before executing it.
type DebugDriver struct {
	dialect.Driver
	log *slog.Logger
}

// NewDebugDriver wraps drv. Statements are logged to l at debug level,
// or to slog.Default() when l is nil.
func NewDebugDriver(drv dialect.Driver, l *slog.Logger) *DebugDriver {
	if l == nil {
		l = slog.Default()
	}
	return &DebugDriver{Driver: drv, log: l}
}

// Exec logs and executes a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "batchql: exec", "query", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Query logs and executes a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "batchql: query", "query", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged with a common
// transaction id.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	l := d.log.With("tx", uuid.NewString())
	l.DebugContext(ctx, "batchql: begin")
	return &DebugTx{Tx: tx, log: l, ctx: ctx}, nil
}

// DebugTx is a transaction of a DebugDriver.
type DebugTx struct {
	dialect.Tx
	log *slog.Logger
	ctx context.Context
}

// Exec logs and executes a statement in the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "batchql: exec", "query", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Query logs and executes a query in the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "batchql: query", "query", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.log.DebugContext(tx.ctx, "batchql: commit")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.log.DebugContext(tx.ctx, "batchql: rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)

// OpenWithStats opens a database with the named database/sql driver and
// wraps it in a StatsDriver.
func OpenWithStats(name, source string, opts ...StatsOption) (*StatsDriver, error) {
	drv, err := Open(name, source)
	if err != nil {
		return nil, err
	}
	return NewStatsDriver(drv, opts...), nil
}
