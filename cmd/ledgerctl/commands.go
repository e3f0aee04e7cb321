package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/ssujit905/Inventory-sub001/internal/config"
	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/logger"
	"github.com/ssujit905/Inventory-sub001/internal/notify"
	"github.com/ssujit905/Inventory-sub001/internal/service"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/store/memory"
	pgstore "github.com/ssujit905/Inventory-sub001/internal/store/postgres"
)

// env carries what every subcommand needs. Tests swap open for a fixed store.
type env struct {
	out  io.Writer
	log  *logger.Logger
	open func(ctx context.Context) (store.Repository, func() error, error)
	// source feeds the watch command; nil means poll only.
	source func(ctx context.Context) (notify.Source, func() error)
}

func newEnv(out io.Writer) *env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	log := logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      "console",
		Output:      os.Stderr,
	})

	return &env{
		out: out,
		log: log,
		open: func(ctx context.Context) (store.Repository, func() error, error) {
			if cfg.DatabaseURL == "" {
				return memory.NewSeeded(), nil, nil
			}
			pg, err := pgstore.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, err
			}
			return pg, pg.Close, nil
		},
		source: func(ctx context.Context) (notify.Source, func() error) {
			if cfg.RedisAddr == "" {
				return nil, nil
			}
			redisBus := notify.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotifyChannel)
			if err := redisBus.Ping(ctx); err != nil {
				log.Warn(ctx, "redis unavailable, polling only: "+err.Error())
				_ = redisBus.Close()
				return nil, nil
			}
			return redisBus, redisBus.Close
		},
	}
}

func register(c *subcommands.Commander, e *env) {
	c.Register(&lotsCmd{env: e}, "ledger")
	c.Register(&profitCmd{env: e}, "ledger")
	c.Register(&planCmd{env: e}, "ledger")
	c.Register(&watchCmd{env: e}, "ledger")
}

// withService opens the store, runs fn and closes the store again.
func (e *env) withService(ctx context.Context, fn func(svc *service.Service) error) subcommands.ExitStatus {
	repo, closeFn, err := e.open(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	if err := fn(service.New(repo, nil, e.log, nil)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type lotsCmd struct {
	*env
	product string
}

func (*lotsCmd) Name() string     { return "lots" }
func (*lotsCmd) Synopsis() string { return "show remaining stock and status per lot" }
func (*lotsCmd) Usage() string {
	return `ledgerctl lots [-product <product_id>]

  Lists every lot with stock in, sold, returned, adjusted and remaining
  units, plus its stock level.
`
}

func (c *lotsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.product, "product", "", "Only show lots of this product id.")
}

func (c *lotsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withService(ctx, func(svc *service.Service) error {
		resp, err := svc.LotStatuses(ctx, c.product)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LOT\tPRODUCT\tIN\tSOLD\tRETURNED\tADJUSTED\tREMAINING\tSTATUS")
		for _, st := range resp.Lots {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				st.LotNumber, st.ProductID, st.StockIn, st.Sold, st.Returned, st.Adjusted, st.Remaining, st.Status)
		}
		return w.Flush()
	})
}

type profitCmd struct {
	*env
	trend bool
}

func (*profitCmd) Name() string     { return "profit" }
func (*profitCmd) Synopsis() string { return "print the profit summary" }
func (*profitCmd) Usage() string {
	return `ledgerctl profit [-trend]

  Recomputes the profit report from the ledger and prints the totals.
  With -trend the monthly profit trend is printed as well.
`
}

func (c *profitCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.trend, "trend", false, "Also print profit per month.")
}

func (c *profitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withService(ctx, func(svc *service.Service) error {
		report, err := svc.ProfitReport(ctx)
		if err != nil {
			return err
		}
		if err := writeSummary(c.out, report.Summary); err != nil {
			return err
		}
		if !c.trend {
			return nil
		}

		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nMONTH\tSALES\tPROFIT")
		for _, month := range report.ProfitTrend {
			fmt.Fprintf(w, "%s\t%d\t%s\n", month.Month, month.Sales, month.ProfitLoss.StringFixed(2))
		}
		return w.Flush()
	})
}

func writeSummary(out io.Writer, s domain.ProfitSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Sales\t%d (delivered %d, returned %d)\n", s.Sales, s.Delivered, s.Returned)
	fmt.Fprintf(w, "Revenue\t%s\n", s.Revenue.StringFixed(2))
	fmt.Fprintf(w, "Cost of goods\t%s\n", s.CostOfGoods.StringFixed(2))
	fmt.Fprintf(w, "Return costs\t%s\n", s.ReturnCosts.StringFixed(2))
	fmt.Fprintf(w, "Ads\t%s\n", s.AdsSpent.StringFixed(2))
	fmt.Fprintf(w, "Packaging\t%s\n", s.PackagingSpent.StringFixed(2))
	fmt.Fprintf(w, "Profit/loss\t%s\n", s.ProfitLoss.StringFixed(2))
	if s.PendingRows > 0 {
		fmt.Fprintf(w, "Pending rows\t%d\n", s.PendingRows)
	}
	return w.Flush()
}

type planCmd struct {
	*env
	product string
	qty     int
}

func (*planCmd) Name() string     { return "plan" }
func (*planCmd) Synopsis() string { return "dry-run a FIFO deduction" }
func (*planCmd) Usage() string {
	return `ledgerctl plan -product <product_id> -qty <n>

  Shows which lots a sale of n units would draw from, oldest first.
  Nothing is written.
`
}

func (c *planCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.product, "product", "", "Product id to plan for (required).")
	f.IntVar(&c.qty, "qty", 1, "Units to deduct.")
}

func (c *planCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.product) == "" {
		fmt.Fprintln(os.Stderr, "-product is required")
		return subcommands.ExitUsageError
	}
	return c.withService(ctx, func(svc *service.Service) error {
		resp, err := svc.PlanSale(ctx, domain.SaleCreateRequest{
			Items: []domain.SaleItemRequest{{ProductID: c.product, Quantity: c.qty}},
		})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LOT\tDEDUCT")
		for _, plan := range resp.Plans {
			for _, step := range plan.Steps {
				fmt.Fprintf(w, "%s\t%d\n", step.LotID, step.DeductQty)
			}
		}
		return w.Flush()
	})
}

type watchCmd struct {
	*env
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "reprint the profit summary whenever the ledger changes" }
func (*watchCmd) Usage() string {
	return `ledgerctl watch [-interval 30s]

  Subscribes to ledger change notifications when REDIS_ADDR is set and
  polls every interval in any case. Stops on SIGINT.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 30*time.Second, "Poll interval.")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withService(ctx, func(svc *service.Service) error {
		var source notify.Source
		if c.source != nil {
			src, closeFn := c.source(ctx)
			if closeFn != nil {
				defer func() { _ = closeFn() }()
			}
			if src != nil {
				source = src
			}
		}

		watcher := notify.NewWatcher(source, c.interval, c.log)
		sub, err := watcher.Watch(ctx, func(ctx context.Context, reason string) {
			report, err := svc.ProfitReport(ctx)
			if err != nil {
				c.log.Error(ctx, "refresh profit summary", err)
				return
			}
			fmt.Fprintf(c.out, "-- %s (%s)\n", time.Now().Format(time.DateTime), reason)
			_ = writeSummary(c.out, report.Summary)
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		sub.Unsubscribe()
		return nil
	})
}
