package main

import (
	stdsql "database/sql"
	"fmt"

	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"github.com/spf13/cobra"

	"github.com/syssam/batchql/dialect"
	"github.com/syssam/batchql/dialect/sql"
	"github.com/syssam/batchql/schema"
)

func newVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [entity...]",
		Short: "Check the mapping against the tables of the database",
		Long: `Verify inspects the tables of every mapped entity, or of the named
entities, and reports missing tables and columns. Nullable columns mapped to
members that cannot hold NULL are reported as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if cfg.DSN == "" {
				return fmt.Errorf("no data source name; set dsn in the config, --dsn or %s", EnvDSN)
			}
			reg, err := loadRegistry(cfg, g.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = reg.Entities()
			}
			descs := make([]*schema.Descriptor, 0, len(names))
			for _, n := range names {
				d, err := reg.Resolve(n)
				if err != nil {
					return err
				}
				descs = append(descs, d)
			}
			drv, err := sql.Open(cfg.Driver, cfg.DSN)
			if err != nil {
				return fmt.Errorf("opening %s: %w", cfg.Driver, err)
			}
			defer drv.Close()
			insp, err := inspector(cfg.dialect(), drv.DB())
			if err != nil {
				return err
			}
			res, err := schema.Verify(cmd.Context(), insp, descs...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range res.Warnings {
				printWarning(out, w.Error())
			}
			if res.HasErrors() {
				for _, e := range res.Errors {
					printError(out, e.Error())
				}
				return fmt.Errorf("%w: %d errors", schema.ErrVerify, len(res.Errors))
			}
			printSuccess(out, "%d entities match the database", len(descs))
			return nil
		},
	}
}

// inspector returns the atlas inspector of the dialect.
func inspector(name string, db *stdsql.DB) (atlas.Inspector, error) {
	d, err := sql.LookupDialect(name)
	if err != nil {
		return nil, err
	}
	switch d.Name {
	case dialect.SQLite:
		return sqlite.Open(db)
	case dialect.Postgres:
		return postgres.Open(db)
	case dialect.MySQL:
		return mysql.Open(db)
	}
	return nil, fmt.Errorf("verify does not support the %s dialect", d.Name)
}
