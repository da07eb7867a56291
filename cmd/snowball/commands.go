package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/mq/queue"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/mq/worker"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/prices"
	app "github.com/darylmathison/dividend-stock-analysis/internal/app"
	"github.com/darylmathison/dividend-stock-analysis/internal/config"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/summary"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
)

var errMissingFlag = errors.New("missing required flag")

// cli carries the process wiring shared by every subcommand.
type cli struct {
	out    io.Writer
	errOut io.Writer

	cfg  *config.Config
	opts []app.Option
}

func newCLI(out, errOut io.Writer, opts ...app.Option) *cli {
	return &cli{out: out, errOut: errOut, opts: opts}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "snowball",
		Short:         "Dividend snowball analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `snowball fetches a symbol's dividend history, caches it, and compares
keeping dividends as cash against reinvesting them on the pay date.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().String("cache-backend", "", "cache store override (bolt, redis, memory)")

	root.AddCommand(newAnalyzeCmd(c), newDividendsCmd(c), newWarmCmd(c), newVersionCmd(c))
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.cfg == nil {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		c.cfg = cfg
	}
	if backend, _ := cmd.Flags().GetString("cache-backend"); backend != "" {
		c.cfg.CacheBackend = backend
		if err := c.cfg.Validate(); err != nil {
			return err
		}
	}
	if err := logger.InitFormat(c.errOut, c.cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	level := c.cfg.LogLevel
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	return logger.SetLevelString(level)
}

// withService starts a service for the duration of fn.
func (c *cli) withService(ctx context.Context, fn func(*app.Service) error) error {
	opts := append([]app.Option{
		app.WithConfig(c.cfg),
		app.WithLogger(logger.Named("snowball")),
	}, c.opts...)
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()
	return fn(svc)
}

type windowFlags struct {
	symbol string
	start  string
	end    string
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.symbol, "symbol", "", "ticker symbol, e.g. KO")
	cmd.Flags().StringVar(&w.start, "start", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&w.end, "end", "", "last day of the window (YYYY-MM-DD)")
}

// parse resolves the window; empty dates are returned as zero values.
func (w *windowFlags) parse(loc *time.Location) (start, end time.Time, err error) {
	if strings.TrimSpace(w.symbol) == "" {
		return start, end, fmt.Errorf("%w: --symbol", errMissingFlag)
	}
	if w.start != "" {
		if start, err = model.ParseDay(w.start, loc); err != nil {
			return start, end, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if w.end != "" {
		if end, err = model.ParseDay(w.end, loc); err != nil {
			return start, end, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return start, end, nil
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	var (
		window      windowFlags
		pricesPath  string
		cash        float64
		nextSession bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compare keep-the-cash against snowball reinvestment",
		Example: `  snowball analyze --symbol KO --prices ko.csv --cash 10000
  snowball analyze --symbol KO --start 2015-01-01 --end 2024-12-31 --prices ko.csv --next-session`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc := c.cfg.Location()
			start, end, err := window.parse(loc)
			if err != nil {
				return err
			}
			if pricesPath == "" {
				return fmt.Errorf("%w: --prices", errMissingFlag)
			}
			series, err := prices.LoadFile(pricesPath, loc)
			if err != nil {
				return err
			}

			return c.withService(cmd.Context(), func(svc *app.Service) error {
				analysis, err := svc.Analyze(cmd.Context(), app.AnalyzeRequest{
					Symbol:               window.symbol,
					Start:                start,
					End:                  end,
					InitialCash:          cash,
					Prices:               series,
					NextSessionAlignment: nextSession,
				})
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(c.out)
					enc.SetIndent("", "  ")
					return enc.Encode(analysis)
				}
				c.warnPartial(analysis.Complete)
				fmt.Fprintf(c.out, "%s %s to %s, %s dividends, %d payments, initial cash %.2f\n\n",
					analysis.Symbol, analysis.Start, analysis.End, analysis.Frequency,
					len(analysis.Dividends), analysis.InitialCash)
				fmt.Fprint(c.out, summary.Markdown(analysis.Summaries))
				return nil
			})
		},
	}
	window.register(cmd)
	cmd.Flags().StringVar(&pricesPath, "prices", "", "CSV file with Date and Close columns")
	cmd.Flags().Float64Var(&cash, "cash", 0, "initial investment (default from config)")
	cmd.Flags().BoolVar(&nextSession, "next-session", false, "book dividends paid on non-trading days on the next session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full analysis as JSON")
	return cmd
}

func newDividendsCmd(c *cli) *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "dividends",
		Short: "Print the normalized dividend table of a window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := window.parse(c.cfg.Location())
			if err != nil {
				return err
			}
			if start.IsZero() || end.IsZero() {
				return fmt.Errorf("%w: --start and --end", errMissingFlag)
			}

			return c.withService(cmd.Context(), func(svc *app.Service) error {
				table, res, err := svc.Dividends(cmd.Context(), window.symbol, start, end)
				if err != nil {
					return err
				}
				c.warnPartial(res.Complete)
				fmt.Fprintln(c.out, "| Pay Date | Ex-Dividend Date | Cash Amount | Frequency |")
				fmt.Fprintln(c.out, "| --- | --- | --- | --- |")
				for _, d := range table {
					fmt.Fprintf(c.out, "| %s | %s | %.4f | %s |\n",
						model.DayKey(d.PayDate), model.DayKey(d.ExDividendDate), d.CashAmount, model.FrequencyLabel(d.Frequency))
				}
				fmt.Fprintf(c.out, "\n%d payments, %.4f per share\n", len(table), table.TotalCash())
				return nil
			})
		},
	}
	window.register(cmd)
	return cmd
}

func newWarmCmd(c *cli) *cobra.Command {
	var (
		symbols []string
		start   string
		end     string
		workers int
	)
	cmd := &cobra.Command{
		Use:     "warm",
		Short:   "Fetch and cache the dividend history of several symbols",
		Example: "  snowball warm --symbols KO,PEP,JNJ --start 2015-01-01 --end 2024-12-31 --workers 3",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(symbols) == 0 {
				return fmt.Errorf("%w: --symbols", errMissingFlag)
			}
			loc := c.cfg.Location()
			window := windowFlags{symbol: symbols[0], start: start, end: end}
			from, to, err := window.parse(loc)
			if err != nil {
				return err
			}
			if from.IsZero() || to.IsZero() {
				return fmt.Errorf("%w: --start and --end", errMissingFlag)
			}

			return c.withService(cmd.Context(), func(svc *app.Service) error {
				ctx := cmd.Context()
				q := queue.NewInMemoryQueue(queue.WithCapacity(len(symbols)))
				results := make(chan worker.Result, len(symbols))
				pool := worker.NewPool(workers, q, svc,
					worker.WithResults(results),
					worker.WithLogger(logger.Named("warm")),
				)
				pool.Start(ctx)

				for _, s := range symbols {
					if err := q.Enqueue(ctx, queue.NewJob(model.NewFetchWindow(s, from, to))); err != nil {
						fmt.Fprintf(c.errOut, "skipping %s: %v\n", s, err)
					}
				}
				_ = q.Close()
				if err := pool.Wait(ctx); err != nil {
					return err
				}
				close(results)

				var failed int
				fmt.Fprintln(c.out, "| Symbol | Outcome | Payments | Cached | Took |")
				fmt.Fprintln(c.out, "| --- | --- | --- | --- | --- |")
				for r := range results {
					if r.Outcome() == worker.OutcomeError {
						failed++
					}
					fmt.Fprintf(c.out, "| %s | %s | %d | %t | %s |\n",
						r.Job.Window.Symbol, r.Outcome(), r.Payments, r.FromCache, r.Took.Round(time.Millisecond))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d symbols failed", failed, len(symbols))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "comma separated ticker symbols")
	cmd.Flags().StringVar(&start, "start", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the window (YYYY-MM-DD)")
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent fetches")
	return cmd
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.out, "snowball %s (%s)\n", version, commit)
		},
	}
}

func (c *cli) warnPartial(complete bool) {
	if !complete {
		fmt.Fprintln(c.errOut, "warning: the provider stopped early; dividend history may be incomplete and was not cached")
	}
}
