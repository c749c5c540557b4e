package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/boddenberg/burger-place-bfa-go/internal/app"
	"github.com/boddenberg/burger-place-bfa-go/internal/config"
	"github.com/boddenberg/burger-place-bfa-go/internal/domain"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	out      io.Writer
	logLevel string
	backend  string
	dir      string

	core   *app.App
	logger *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "burgerctl",
		Short:         "Burger place maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.core == nil {
				return nil
			}
			defer c.logger.Sync()
			return c.core.Close(context.WithoutCancel(cmd.Context()))
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend, overrides STORAGE_BACKEND")
	root.PersistentFlags().StringVar(&c.dir, "dir", "", "storage directory for the file backend, overrides STORAGE_DIR")

	root.AddCommand(
		c.seedCmd(),
		c.dumpCmd(),
		c.resetCmd(),
		c.kpisCmd(),
		c.ordersCmd(),
		c.advanceCmd(),
	)
	return root
}

func (c *cli) open(ctx context.Context) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.backend != "" {
		cfg.StorageBackend = c.backend
	}
	if c.dir != "" {
		cfg.StorageDir = c.dir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.logger = observability.NewCLILogger(c.logLevel)
	core, err := app.New(ctx, cfg, observability.NewMetrics(), c.logger)
	if err != nil {
		return err
	}
	c.core = core
	return nil
}

func (c *cli) seedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo dataset when the store is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if force {
				if err := c.core.Store.Reset(ctx); err != nil {
					return err
				}
			}
			seeded, err := c.core.Store.SeedIfEmpty(ctx)
			if err != nil {
				return err
			}
			if !seeded {
				fmt.Fprintln(c.out, "store already has data, nothing seeded")
				return nil
			}
			if status := c.core.Store.SyncStatus(); !status.Synced {
				return fmt.Errorf("seed not persisted: %s", status.LastError)
			}
			fmt.Fprintln(c.out, "demo data seeded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reset before seeding")
	return cmd
}

func (c *cli) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the stored state document as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printJSON(c.core.Store.Snapshot(cmd.Context()))
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the state, sessions and cart from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.core.Store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "store reset")
			return nil
		},
	}
}

func (c *cli) kpisCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "Show the dashboard indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := c.core.Store.Dashboard(cmd.Context())
			if asJSON {
				return c.printJSON(d)
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Orders\t%d\n", d.TotalOrders)
			fmt.Fprintf(tw, "In progress\t%d\n", d.InProgressOrders)
			fmt.Fprintf(tw, "Delivered\t%d\n", d.DeliveredOrders)
			fmt.Fprintf(tw, "Revenue\t%s\n", d.Revenue.StringFixed(2))
			fmt.Fprintf(tw, "Products\t%d\n", d.Products)
			fmt.Fprintf(tw, "Customers\t%d\n", d.Customers)
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (c *cli) ordersCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orders := c.core.Orders.ListOrders(cmd.Context(), query)
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tCUSTOMER\tSTATUS\tTOTAL\tETA")
			for _, o := range orders {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d min\n",
					o.DisplayCode, o.CustomerName, o.Status, o.Total.StringFixed(2), o.RemainingMinutes)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by code, customer or status")
	return cmd
}

func (c *cli) advanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <order-id>",
		Short: "Move an order to its next status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			o, err := c.core.Orders.Advance(cmd.Context(), id)
			if err != nil {
				return err
			}
			if o == nil {
				return &domain.ErrNotFound{Resource: "order", ID: args[0]}
			}
			fmt.Fprintf(c.out, "order %s is now %s\n", o.DisplayCode, o.Status)
			return nil
		},
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
