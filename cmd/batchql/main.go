// Command batchql renders and executes batch DELETE and UPDATE statements
// for entities described in a mapping file.
//
//	batchql render delete Item --where 'Quantity > 10' --dialect sqlserver
//	batchql exec update Item --set '{Quantity: Quantity + 1}' --where 'Active == true'
//	batchql verify
//	batchql schema Item
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	// Database drivers available to exec and verify.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/batchql/schema"
)

// globals are the flags shared by all commands.
type globals struct {
	configPath string
	driver     string
	dsn        string
	dialect    string
	mapping    string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "batchql",
		Short:         "Set-based DELETE and UPDATE statements for mapped entities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "config file (default "+DefaultConfigFile+")")
	f.StringVar(&g.driver, "driver", "", "database/sql driver name")
	f.StringVar(&g.dsn, "dsn", "", "data source name (env "+EnvDSN+")")
	f.StringVar(&g.dialect, "dialect", "", "SQL dialect: sqlserver, postgres, mysql or sqlite")
	f.StringVarP(&g.mapping, "mapping", "m", "", "mapping file")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "log compiled statements")
	cmd.AddCommand(
		newRenderCmd(g),
		newExecCmd(g),
		newVerifyCmd(g),
		newSchemaCmd(g),
	)
	return cmd
}

// config loads the configuration file and applies the flags set on cmd.
func (g *globals) config() (*Config, error) {
	path, explicit := g.configPath, g.configPath != ""
	if !explicit {
		path = DefaultConfigFile
	}
	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		return nil, err
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{g.driver, &cfg.Driver},
		{g.dsn, &cfg.DSN},
		{g.dialect, &cfg.Dialect},
		{g.mapping, &cfg.Mapping},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	return cfg, nil
}

func (g *globals) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadRegistry(cfg *Config, log *slog.Logger) (*schema.Registry, error) {
	reg, err := schema.LoadRegistry(cfg.Mapping, schema.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("loading mapping: %w", err)
	}
	return reg, nil
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func printError(w io.Writer, msg string) {
	errorColor.Fprint(w, "Error: ")
	fmt.Fprintln(w, msg)
}

func printWarning(w io.Writer, msg string) {
	warnColor.Fprint(w, "⚠ ")
	fmt.Fprintln(w, msg)
}

func printInfo(w io.Writer, format string, args ...any) {
	infoColor.Fprintf(w, format+"\n", args...)
}
