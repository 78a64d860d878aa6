// Package cli is the vuoksi command line: the API server plus one-shot
// trading and fundamentals commands against the same stores.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vuoksi-trader/app"
	"vuoksi-trader/auth"
	"vuoksi-trader/config"
	models "vuoksi-trader/database/models_pkg"
	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
	"vuoksi-trader/trading"
)

// Version is set at build time
var Version = "dev"

const dateLayout = "2006-01-02"

// env is what every command needs once flags are parsed
type env struct {
	cfg    *config.Config
	logger *logging.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "vuoksi",
		Short:         "vuoksi - prediction-driven trading and fundamentals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.cfg = config.LoadFromEnv()
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				e.cfg.LogLevel = level
			}
			e.logger = logging.NewLogger(e.cfg.LogLevel)
			return nil
		},
	}

	rootCmd.AddCommand(newServeCmd(e))
	rootCmd.AddCommand(newTradeCmd(e))
	rootCmd.AddCommand(newBacktestCmd(e))
	rootCmd.AddCommand(newFundamentalsCmd(e))
	rootCmd.AddCommand(newTokenCmd(e))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	return rootCmd
}

// withApp builds the services, runs fn and releases the connections
func (e *env) withApp(fn func(a *app.App) error) error {
	a := app.New(e.cfg, e.logger)
	defer a.Close()
	if err := a.Init(); err != nil {
		return err
	}
	return fn(a)
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, the order update stream and background refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.New(e.cfg, e.logger).Start(cmd.Context())
		},
	}
}

func newTradeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade SYMBOL",
		Short: "Act once on the model's prediction for a symbol",
		Long: `Fetch a prediction, gate it on confidence, size the position and submit a
market order. Example: vuoksi trade AAPL --user 1 --model xgboost`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			modelType, _ := cmd.Flags().GetString("model")
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			risk, _ := cmd.Flags().GetFloat64("risk")

			req := trading.TradeRequest{
				UserID:              userID,
				Symbol:              args[0],
				ModelType:           modelType,
				ConfidenceThreshold: e.cfg.Trading.ConfidenceThreshold,
				RiskPerTrade:        e.cfg.Trading.RiskPerTrade,
			}
			if cmd.Flags().Changed("confidence") {
				req.ConfidenceThreshold = confidence
			}
			if cmd.Flags().Changed("risk") {
				req.RiskPerTrade = risk
			}

			return e.withApp(func(a *app.App) error {
				res, err := a.Engine().Execute(cmd.Context(), req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Status == trading.StatusFailed || res.Status == trading.StatusPartialFailure {
					return fmt.Errorf("trade %s: %s", res.Status, res.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64("user", 0, "User id the trade is recorded for")
	cmd.Flags().String("model", ml.ModelLSTM, "Model type ("+strings.Join(ml.SupportedModels(), ", ")+")")
	cmd.Flags().Float64("confidence", 0, "Confidence threshold in [0,1] (TRADING_CONFIDENCE_THRESHOLD if unset)")
	cmd.Flags().Float64("risk", 0, "Fraction of equity to commit (TRADING_RISK_PER_TRADE if unset)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newBacktestCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Score a model's directional accuracy over its recent predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelType, _ := cmd.Flags().GetString("model")
			lookback, _ := cmd.Flags().GetInt("lookback")
			testPoints, _ := cmd.Flags().GetInt("test-points")

			return e.withApp(func(a *app.App) error {
				res, err := a.Backtests().Run(cmd.Context(), args[0], modelType, lookback, testPoints)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().String("model", ml.ModelLSTM, "Model type")
	cmd.Flags().Int("lookback", 60, fmt.Sprintf("Model input window [%d,%d]", trading.MinLookback, trading.MaxLookback))
	cmd.Flags().Int("test-points", 30, fmt.Sprintf("Points to score [%d,%d]", trading.MinTestPoints, trading.MaxTestPoints))

	return cmd
}

func newFundamentalsCmd(e *env) *cobra.Command {
	fundamentalsCmd := &cobra.Command{
		Use:   "fundamentals",
		Short: "Company profiles, financial reports and key ratios",
	}

	profileCmd := &cobra.Command{
		Use:   "profile SYMBOL",
		Short: "Show the stored company profile, fetching it when missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			return e.withApp(func(a *app.App) error {
				svc := a.Fundamentals()
				var (
					p   *models.CompanyProfile
					err error
				)
				if refresh {
					p, err = svc.FetchAndUpsertCompanyProfile(cmd.Context(), args[0])
				} else {
					p, err = svc.GetProfile(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	profileCmd.Flags().Bool("refresh", false, "Fetch the profile from the data provider first")

	reportsCmd := &cobra.Command{
		Use:   "reports SYMBOL",
		Short: "List stored financial reports, optionally fetching new filings first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			timeframe, _ := cmd.Flags().GetString("timeframe")
			reportType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")

			return e.withApp(func(a *app.App) error {
				svc := a.Fundamentals()
				if refresh {
					if _, err := svc.FetchAndUpsertFinancialReports(cmd.Context(), args[0], timeframe, limit); err != nil {
						return err
					}
				}
				reports, err := svc.ListReports(cmd.Context(), args[0], reportType, timeframe, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), reports)
			})
		},
	}
	reportsCmd.Flags().Bool("refresh", false, "Fetch filings from the data provider first")
	reportsCmd.Flags().String("timeframe", models.TimeframeAnnual, "annual, quarterly or ttm")
	reportsCmd.Flags().String("type", "", "income_statement, balance_sheet or cash_flow_statement (all if empty)")
	reportsCmd.Flags().Int("limit", 5, "Maximum filings to fetch and list")

	ratiosCmd := &cobra.Command{
		Use:   "ratios SYMBOL",
		Short: "Show key ratios, computing and storing them when stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			asOf, err := parseDate(dateStr)
			if err != nil {
				return err
			}
			return e.withApp(func(a *app.App) error {
				set, err := a.Fundamentals().GetOrCalculateAndStoreKeyRatios(cmd.Context(), args[0], asOf)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), set)
			})
		},
	}
	ratiosCmd.Flags().String("date", "", "Ratio date in YYYY-MM-DD format (latest statement date if not provided)")

	fundamentalsCmd.AddCommand(profileCmd, reportsCmd, ratiosCmd)
	return fundamentalsCmd
}

func newTokenCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue an API access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			tokens := auth.NewTokenService(e.cfg.Auth.SecretKey, e.cfg.Auth.TokenTTL)
			data, err := tokens.Issue(userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vuoksi %s\n", Version)
		},
	}
}

// parseDate parses an optional YYYY-MM-DD flag value as a UTC date
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return &t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
