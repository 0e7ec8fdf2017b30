package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
	"stockinsights/internal/live"
	"stockinsights/internal/util"
	"stockinsights/pkg/insights"
)

// globals are the persistent flags shared by every command.
type globals struct {
	server   string
	grpcAddr string
	language string
	logLevel string
	timeout  time.Duration
}

func (g *globals) client() *insights.Client {
	return insights.NewClient(g.server).WithLanguage(g.language)
}

func (g *globals) logger() *slog.Logger {
	return util.NewLogger(g.logLevel, "text")
}

// newRootCmd creates the root command.
func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "insights-cli",
		Short:         "Stock insights from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.server, "server", envOr("INSIGHTS_SERVER", "http://localhost:8080"), "insights server base URL")
	rootCmd.PersistentFlags().StringVar(&g.grpcAddr, "grpc", envOr("INSIGHTS_GRPC", "localhost:9090"), "event stream address")
	rootCmd.PersistentFlags().StringVar(&g.language, "language", "", "UI language (en, fr, zh-Hant, ...)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newPricesCmd(g))
	rootCmd.AddCommand(newMoversCmd(g))
	rootCmd.AddCommand(newEntitiesCmd(g))
	rootCmd.AddCommand(newLookupCmd(g))
	rootCmd.AddCommand(newSessionCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))
	rootCmd.AddCommand(newLocalCmd(g))

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "insights-cli %s\n", version)
		},
	}
}

func newPricesCmd(g *globals) *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "prices SYMBOL...",
		Short: "Show the latest price of each symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			symbols := domain.ParseSymbols(args...)
			c := g.client()
			var (
				series map[string][]domain.PricePoint
				err    error
			)
			if history {
				series, err = c.StockHistory(ctx, symbols)
			} else {
				series, err = c.StockPrices(ctx, symbols)
			}
			if err != nil {
				return err
			}
			renderPoints(cmd.OutOrStdout(), latestPoints(symbols, series))
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "use daily history only, without today's quote")
	return cmd
}

func newMoversCmd(g *globals) *cobra.Command {
	var losers bool
	cmd := &cobra.Command{
		Use:   "movers SYMBOL...",
		Short: "Rank symbols by today's change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			movers, err := g.client().Movers(ctx, domain.ParseSymbols(args...), !losers)
			if err != nil {
				return err
			}
			renderMovers(cmd.OutOrStdout(), movers)
			return nil
		},
	}
	cmd.Flags().BoolVar(&losers, "losers", false, "show decliners instead of gainers")
	return cmd
}

func newEntitiesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "entities SYMBOL...",
		Short: "Summarize the entities mentioned in recent news",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			entities, err := g.client().Entities(ctx, domain.ParseSymbols(args...))
			if err != nil {
				return err
			}
			renderEntitySummaries(cmd.OutOrStdout(), entities)
			return nil
		},
	}
}

func newLookupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup QUERY",
		Short: "Find companies by ticker or name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			companies, err := g.client().LookupCompanies(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(companies) == 0 {
				fmt.Fprintln(out, dimStyle.Render("no results"))
			}
			for _, c := range companies {
				fmt.Fprintf(out, "%s %s\n", symbolStyle.Render(fmt.Sprintf("%-8s", c.Symbol)), c.Description)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Hosted sessions
// ---------------------------------------------------------------------------

func newSessionCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage dashboards hosted by the server",
	}

	var symbols, articles string
	var forceBubbles bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a hosted dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			params := url.Values{}
			if symbols != "" {
				params.Set("symbols", symbols)
			}
			if articles != "" {
				params.Set("articles", articles)
			}
			if g.language != "" {
				params.Set("language", g.language)
			}
			if forceBubbles {
				params.Set("forcebubbles", "true")
			}
			s, err := g.client().CreateSession(ctx, params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		},
	}
	create.Flags().StringVar(&symbols, "symbols", "", "comma-separated startup symbols")
	create.Flags().StringVar(&articles, "articles", "", "comma-separated symbols to select")
	create.Flags().BoolVar(&forceBubbles, "forcebubbles", false, "select every startup symbol")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a hosted dashboard's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			s, err := g.client().GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			renderState(cmd.OutOrStdout(), s.State)
			return nil
		},
	}

	var entity string
	send := &cobra.Command{
		Use:   "send ID TYPE [SYMBOL...]",
		Short: "Send an intent (add, remove, select, deselect, open_tweets, switch_date, ...)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			in := insights.Intent{Type: args[1], Entity: entity}
			rest := args[2:]
			switch args[1] {
			case "search":
				in.Query = strings.Join(rest, " ")
			case "switch_date":
				if len(rest) > 0 {
					in.Date = rest[0]
				}
			case "language":
				if len(rest) > 0 {
					in.Language = rest[0]
				}
			default:
				in.Symbols = domain.ParseSymbols(rest...)
			}
			s, err := g.client().SendIntent(ctx, args[0], in)
			if err != nil {
				return err
			}
			renderState(cmd.OutOrStdout(), s.State)
			return nil
		},
	}
	send.Flags().StringVar(&entity, "entity", "", "entity filter for tweets")

	closeCmd := &cobra.Command{
		Use:   "close ID",
		Short: "Close a hosted dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			return g.client().DeleteSession(ctx, args[0])
		},
	}

	cmd.AddCommand(create, show, send, closeCmd)
	return cmd
}

func newWatchCmd(g *globals) *cobra.Command {
	var tui bool
	cmd := &cobra.Command{
		Use:   "watch ID",
		Short: "Stream a hosted dashboard's events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stream := live.NewClient(g.grpcAddr, g.logger())
			if tui {
				return runWatchTUI(ctx, g.client(), stream, args[0])
			}
			out := cmd.OutOrStdout()
			return stream.Watch(ctx, args[0], func(f live.Frame) error {
				printFrame(out, f)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&tui, "tui", false, "full-screen view with date navigation")
	return cmd
}

func printFrame(w io.Writer, f live.Frame) {
	switch f.Kind {
	case live.FrameSnapshot:
		if f.Snapshot != nil {
			renderState(w, *f.Snapshot)
		}
	case live.FrameEvent:
		if f.Action == nil {
			return
		}
		a := f.Action
		line := fmt.Sprintf("#%d %s", f.Seq, a.Type)
		if len(a.Symbols) > 0 {
			line += " " + strings.Join(a.Symbols, ",")
		}
		if a.Err != "" {
			fmt.Fprintln(w, errorStyle.Render(line+": "+a.Err))
			return
		}
		fmt.Fprintln(w, dimStyle.Render(line))
	}
}

// ---------------------------------------------------------------------------
// Local dashboard
// ---------------------------------------------------------------------------

func newLocalCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "local SYMBOL...",
		Short: "Run a dashboard in-process against the server and print it once loaded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			symbols := domain.ParseSymbols(args...)
			d := dashboard.New(dashboard.NewSyncBus(), g.client(), nil, dashboard.Options{
				Symbols:  symbols,
				Articles: symbols,
				Language: g.language,
			}, g.logger())
			defer d.Close()

			st := runLocal(ctx, d)
			renderState(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

// runLocal starts d and waits until its prices and news have arrived, or
// failed, or ctx ends. It returns the resulting state.
func runLocal(ctx context.Context, d *dashboard.Dashboard) dashboard.Snapshot {
	_, events := d.Subscribe(64)
	d.Start(ctx)

	var prices, news bool
	for !prices || !news {
		select {
		case <-ctx.Done():
			return d.State()
		case evt, ok := <-events:
			if !ok {
				return d.State()
			}
			switch evt.Action.Type {
			case dashboard.StockPriceData:
				prices = true
			case dashboard.NewsData:
				news = true
			case dashboard.DataUnavailable:
				switch evt.Action.Kind {
				case dashboard.PriceError:
					prices = true
				case dashboard.NewsError:
					news = true
				}
			}
		}
	}
	return d.State()
}
