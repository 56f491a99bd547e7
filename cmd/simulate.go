package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"papertrader/config"
	"papertrader/internal/engine"
	"papertrader/internal/models"
	"papertrader/internal/services"
)

// tradeSpec is a scripted trade in SIDE:SYMBOL:QTY form.
type tradeSpec struct {
	Side     models.TradeType
	Symbol   string
	Quantity int
}

func parseTradeSpec(s string) (tradeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return tradeSpec{}, fmt.Errorf("trade %q: want SIDE:SYMBOL:QTY", s)
	}
	side := models.TradeType(strings.ToUpper(parts[0]))
	if side != models.TradeBuy && side != models.TradeSell {
		return tradeSpec{}, fmt.Errorf("trade %q: side must be BUY or SELL", s)
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return tradeSpec{}, fmt.Errorf("trade %q: quantity: %w", s, err)
	}
	return tradeSpec{Side: side, Symbol: strings.ToUpper(parts[1]), Quantity: qty}, nil
}

type tradeOutcome struct {
	Trade  string `yaml:"trade"`
	Status string `yaml:"status"`
	Error  string `yaml:"error,omitempty"`
}

type simulationReport struct {
	Ticks     int                     `yaml:"ticks"`
	Trades    []tradeOutcome          `yaml:"trades"`
	Prices    map[string]float64      `yaml:"prices"`
	Portfolio models.PortfolioMetrics `yaml:"portfolio"`
}

type simulateOptions struct {
	ticks  int
	trades []string
	seed   uint64
}

func simulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an offline simulation and print the resulting portfolio as YAML",
		Example: `  papertrader simulate --ticks 100 --trade BUY:AAPL:10 --trade SELL:AAPL:4
  papertrader simulate --seed 42 --ticks 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			catalog, err := config.LoadCatalog(cfg.CatalogFile)
			if err != nil {
				return err
			}
			engineOpts := cfg.EngineOptions()
			if opts.seed != 0 {
				engineOpts = append(engineOpts, engine.WithRand(rand.New(rand.NewPCG(opts.seed, opts.seed))))
			}
			return runSimulation(cmd.OutOrStdout(), catalog, engineOpts, opts)
		},
	}
	cmd.Flags().IntVar(&opts.ticks, "ticks", 10, "Number of price ticks to run before trading")
	cmd.Flags().StringArrayVar(&opts.trades, "trade", nil, "Trade to execute, as SIDE:SYMBOL:QTY (repeatable)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Seed for a reproducible price walk (0 = random)")
	return cmd
}

// runSimulation ticks the engine by hand, then applies the scripted trades in
// order. Rejected trades are reported, not fatal.
func runSimulation(w io.Writer, catalog []models.Instrument, engineOpts []engine.Option, opts simulateOptions) error {
	if opts.ticks < 0 {
		return fmt.Errorf("ticks must not be negative")
	}
	specs := make([]tradeSpec, 0, len(opts.trades))
	for _, s := range opts.trades {
		spec, err := parseTradeSpec(s)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	e, err := engine.New(catalog, engineOpts...)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	for i := 0; i < opts.ticks; i++ {
		e.Tick()
	}

	report := simulationReport{Ticks: opts.ticks, Trades: []tradeOutcome{}}
	for i, spec := range specs {
		var err error
		if spec.Side == models.TradeBuy {
			_, err = e.Buy(spec.Symbol, spec.Quantity)
		} else {
			_, err = e.Sell(spec.Symbol, spec.Quantity)
		}
		outcome := tradeOutcome{Trade: opts.trades[i], Status: "filled"}
		if err != nil {
			outcome.Status = engine.ErrorCode(err)
			outcome.Error = err.Error()
		}
		report.Trades = append(report.Trades, outcome)
	}
	report.Prices = e.Prices()
	report.Portfolio = e.PortfolioMetrics()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func catalogCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the effective instrument catalog as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			catalog, err := config.LoadCatalog(cfg.CatalogFile)
			if err != nil {
				return err
			}
			if live {
				logger, err := config.NewLogger(cfg.LogLevel, "console")
				if err != nil {
					return err
				}
				defer logger.Sync()
				market := services.NewMarketDataService(cfg.AlphaVantageKey, cfg.AlphaVantageURL, logger)
				if !market.Enabled() {
					return fmt.Errorf("--live needs ALPHA_VANTAGE_API_KEY")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				catalog = market.SeedCatalog(ctx, catalog)
			}
			out, err := config.MarshalCatalog(catalog)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Replace initial prices with live Alpha Vantage quotes")
	return cmd
}
