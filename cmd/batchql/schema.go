package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syssam/batchql/schema"
)

func newSchemaCmd(g *globals) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "schema [entity...]",
		Short: "Print the resolved mapping of entities",
		Example: `  batchql schema
  batchql schema Item Order
  batchql schema --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			log := g.logger(cmd.ErrOrStderr())
			reg, err := loadRegistry(cfg, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printEntities(out, reg, args); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			printInfo(out, "watching %s", cfg.Mapping)
			return reg.Watch(ctx, cfg.Mapping, func(err error) {
				if err != nil {
					printError(out, err.Error())
					return
				}
				if err := printEntities(out, reg, args); err != nil {
					printError(out, err.Error())
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reprint the mapping each time the file changes")
	return cmd
}

func printEntities(w io.Writer, reg *schema.Registry, names []string) error {
	if len(names) == 0 {
		names = reg.Entities()
	}
	for _, n := range names {
		d, err := reg.Resolve(n)
		if err != nil {
			return err
		}
		printDescriptor(w, d)
	}
	return nil
}

func printDescriptor(w io.Writer, d *schema.Descriptor) {
	fmt.Fprintf(w, "%s -> %s", d.Name, d.Table)
	if d.Inheritance != schema.InheritNone {
		fmt.Fprintf(w, " (%s of %s)", d.Inheritance, d.Base)
	}
	fmt.Fprintln(w)
	printInfo(w, "  version %s", d.Version)
	for _, c := range d.Columns {
		ref := c.Ref()
		if c.Table != d.Table {
			ref += " @" + c.Table.String()
		}
		fmt.Fprintf(w, "  %-24s %-24s %-8s %s\n", c.Name, ref, c.StoreType(), strings.Join(columnFlags(c), ","))
	}
	if d.Filter != nil {
		fmt.Fprintf(w, "  filter %s\n", d.Filter)
	}
}

func columnFlags(c *schema.Column) []string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{c.Key, "key"},
		{c.Computed, "computed"},
		{c.ConcurrencyToken, "token"},
		{c.Nullable, "nullable"},
		{c.Shadow, "shadow"},
		{c.HasConverter(), "converted"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return flags
}
