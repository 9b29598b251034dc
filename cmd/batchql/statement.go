package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/syssam/batchql/batch"
	"github.com/syssam/batchql/compiler/translate"
	"github.com/syssam/batchql/dialect"
	"github.com/syssam/batchql/dialect/sql"
	ql "github.com/syssam/batchql/querylanguage"
)

// statement holds the flags describing a batch statement.
type statement struct {
	where         string
	set           string
	values        []string
	args          []string
	columns       []string
	ignoreFilters bool
}

func (s *statement) flags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&s.where, "where", "w", "", "filter, e.g. 'Quantity > 10 && Active == true'")
	f.StringVar(&s.set, "set", "", "update selector, e.g. '{Quantity: Quantity + 1}'")
	f.StringArrayVar(&s.values, "value", nil, "update value as member=expr (repeatable)")
	f.StringArrayVar(&s.args, "arg", nil, "literal bound to param(i), in order (repeatable)")
	f.StringSliceVar(&s.columns, "columns", nil, "members assigned by --value; others are skipped")
	f.BoolVar(&s.ignoreFilters, "ignore-filters", false, "leave entity query filters out")
}

// compile returns the statement for op ("delete" or "update") on entity.
func (s *statement) compile(c *batch.Client, op, entity string) (*sql.Generated, error) {
	where, opts, err := s.parse()
	if err != nil {
		return nil, err
	}
	switch op {
	case "delete":
		if s.set != "" || len(s.values) > 0 {
			return nil, fmt.Errorf("delete takes no --set or --value")
		}
		return c.CompileDelete(entity, where, opts...)
	case "update":
		switch {
		case s.set != "" && len(s.values) > 0:
			return nil, fmt.Errorf("--set and --value are exclusive")
		case s.set != "":
			set, err := ql.ParseObject(s.set)
			if err != nil {
				return nil, fmt.Errorf("parsing --set: %w", err)
			}
			return c.CompileUpdateFunc(entity, set, where, opts...)
		case len(s.values) > 0:
			values, err := parseValues(s.values)
			if err != nil {
				return nil, err
			}
			return c.CompileUpdate(entity, values, where, opts...)
		}
		return nil, fmt.Errorf("update requires --set or --value")
	}
	return nil, fmt.Errorf("unknown operation %q, expected delete or update", op)
}

func (s *statement) parse() (ql.P, []batch.QueryOption, error) {
	var (
		where ql.P
		opts  []batch.QueryOption
		err   error
	)
	if s.where != "" {
		if where, err = ql.Parse(s.where); err != nil {
			return nil, nil, fmt.Errorf("parsing --where: %w", err)
		}
	}
	if len(s.args) > 0 {
		args := make([]any, len(s.args))
		for i, a := range s.args {
			if args[i], err = ql.ParseValue(a); err != nil {
				return nil, nil, fmt.Errorf("parsing --arg %d: %w", i, err)
			}
		}
		opts = append(opts, batch.Args(args...))
	}
	if len(s.columns) > 0 {
		opts = append(opts, batch.Columns(s.columns...))
	}
	if s.ignoreFilters {
		opts = append(opts, batch.IgnoreQueryFilters())
	}
	return where, opts, nil
}

func parseValues(vs []string) (map[string]any, error) {
	values := make(map[string]any, len(vs))
	for _, v := range vs {
		name, src, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("--value %q: expected member=expr", v)
		}
		x, err := ql.ParseExpr(src)
		if err != nil {
			return nil, fmt.Errorf("--value %s: %w", name, err)
		}
		values[strings.TrimSpace(name)] = x
	}
	return values, nil
}

// withVars returns ctx carrying the session variables given as name=value.
func withVars(ctx context.Context, vs []string) (context.Context, error) {
	for _, v := range vs {
		name, value, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("--var %q: expected name=value", v)
		}
		ctx = sql.WithVar(ctx, strings.TrimSpace(name), value)
	}
	return ctx, nil
}

func clientOptions(cfg *Config, log *slog.Logger) ([]batch.Option, error) {
	reg, err := loadRegistry(cfg, log)
	if err != nil {
		return nil, err
	}
	policy, err := translate.ParseTokenPolicy(cfg.TokenPolicy)
	if err != nil {
		return nil, err
	}
	return []batch.Option{
		batch.WithRegistry(reg),
		batch.WithDialect(cfg.dialect()),
		batch.WithTokenPolicy(policy),
		batch.WithLogger(log),
	}, nil
}

func printStatement(w io.Writer, g *sql.Generated) {
	fmt.Fprintln(w, g.Query)
	printInfo(w, "-- %s %d args: %v", g.Dialect, len(g.Args), g.Args)
}

func newRenderCmd(g *globals) *cobra.Command {
	s := &statement{}
	cmd := &cobra.Command{
		Use:   "render <delete|update> <entity>",
		Short: "Print the statement without connecting to a database",
		Example: `  batchql render delete Item --where 'Quantity > 10' --dialect sqlserver
  batchql render update Item --value 'Name="X"' --where 'ItemId == 5'
  batchql render update Item --set '{Price: Price * param(0)}' --arg 1.1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			log := g.logger(cmd.ErrOrStderr())
			opts, err := clientOptions(cfg, log)
			if err != nil {
				return err
			}
			c, err := batch.New(nil, opts...)
			if err != nil {
				return err
			}
			st, err := s.compile(c, args[0], args[1])
			if err != nil {
				return err
			}
			printStatement(cmd.OutOrStdout(), st)
			return nil
		},
	}
	s.flags(cmd)
	return cmd
}

func newExecCmd(g *globals) *cobra.Command {
	var (
		s      = &statement{}
		vars   []string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "exec <delete|update> <entity>",
		Short: "Execute the statement and report the affected rows",
		Example: `  batchql exec delete Item --where 'Quantity > 10' --dry-run
  batchql exec update Item --set '{Active: false}' --var app.tenant=acme`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := withVars(cmd.Context(), vars)
			if err != nil {
				return err
			}
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if cfg.DSN == "" {
				return fmt.Errorf("no data source name; set dsn in the config, --dsn or %s", EnvDSN)
			}
			log := g.logger(cmd.ErrOrStderr())
			opts, err := clientOptions(cfg, log)
			if err != nil {
				return err
			}
			drv, stats, err := openDriver(cfg, log)
			if err != nil {
				return err
			}
			if g.verbose {
				opts = append(opts, batch.Debug())
			}
			c, err := batch.New(drv, opts...)
			if err != nil {
				drv.Close()
				return err
			}
			defer c.Close()
			st, err := s.compile(c, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printStatement(out, st)
			if dryRun {
				return nil
			}
			n, err := c.Exec(ctx, st)
			if err != nil {
				return err
			}
			printSuccess(out, "%d rows affected", n)
			if stats != nil && g.verbose {
				printInfo(out, "-- %s", stats.Stats().Snapshot())
			}
			return nil
		},
	}
	s.flags(cmd)
	cmd.Flags().StringArrayVar(&vars, "var", nil, "session variable set before the statement, as name=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statement without executing it")
	return cmd
}

// openDriver opens the configured database. With a slow threshold the
// driver records statement statistics and prometheus metrics.
func openDriver(cfg *Config, log *slog.Logger) (dialect.Driver, *sql.StatsDriver, error) {
	drv, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", cfg.Driver, err)
	}
	if cfg.SlowThreshold <= 0 {
		return drv, nil, nil
	}
	m, err := sql.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		drv.Close()
		return nil, nil, err
	}
	stats := sql.NewStatsDriver(drv,
		sql.WithSlowThreshold(cfg.SlowThreshold),
		sql.WithSlowStatementLog(log),
		sql.WithMetrics(m),
	)
	return stats, stats, nil
}
