// form13f extracts Form 13F-HR holdings from SEC EDGAR filings.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seenimoa/form13f/internal/config"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set in PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "form13f: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "form13f [CIK...]",
	Short: "Extract 13F-HR holdings from SEC EDGAR as CSV",
	Long: `form13f reads the EDGAR quarterly form index, selects Form 13F-HR
filings and writes every reported holding to stdout as CSV:

  cik,name,cusip,issuer,value,quantity,type

Positional CIKs restrict the run to those filers and lift the --count limit.
Diagnostics are written to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile, cmd.Flags())
		} else {
			cfg, err = config.Load(cmd.Flags())
		}
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if len(args) > 0 {
			cfg.CIKs = args
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger, err = cfg.Logging.NewLogger(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		slog.SetDefault(logger)
		return nil
	},
	Args: cobra.ArbitraryArgs,
	RunE: runHoldings,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file path (default: ./config/form13f.yaml)")
	pf.Int("year", 2021, "filing year")
	pf.String("quarter", "1", "filing quarter (1-4, Q1-Q4 or QTR1-QTR4)")
	pf.Int("count", 2, "maximum number of filings (ignored when CIKs are given)")
	pf.Bool("all", false, "process every matching filing")
	pf.String("form-type", "13F-HR", "filing type to select")
	pf.Int("concurrency", 1, "number of filings fetched in parallel")
	pf.String("cache-dir", ".", "directory holding cached quarterly indexes")
	pf.String("user-agent", "", "User-Agent sent to SEC (name and contact email)")
	pf.String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(holdingsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skips config loading.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "form13f %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Holdings Command ---

var holdingsCmd = &cobra.Command{
	Use:   "holdings [CIK...]",
	Short: "Write holdings of the selected quarterly filings as CSV",
	Example: `  form13f holdings --year 2021 --quarter Q1 --count 5
  form13f holdings --year 2020 --quarter 4 0001067983`,
	Args: cobra.ArbitraryArgs,
	RunE: runHoldings,
}

func runHoldings(cmd *cobra.Command, args []string) error {
	_, err := newApp(cfg, logger).holdings(cmd.Context(), cmd.OutOrStdout())
	return err
}

// --- Index Command ---

var indexCmd = &cobra.Command{
	Use:   "index [CIK...]",
	Short: "Write the selected filing references as CSV without fetching filings",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newApp(cfg, logger).index(cmd.Context(), cmd.OutOrStdout())
	},
}

// --- Latest Command ---

var latestCmd = &cobra.Command{
	Use:   "latest [CIK...]",
	Short: "Write holdings of the most recent filings from EDGAR's current-filings feed",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newApp(cfg, logger).latest(cmd.Context(), cmd.OutOrStdout())
		return err
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and index cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		q := cfg.QuarterToken()
		cachePath := newApp(cfg, logger).cache().Path(cfg.Year, q)
		cached := "missing"
		if fi, err := os.Stat(cachePath); err == nil {
			cached = fmt.Sprintf("present (%d bytes, %s)", fi.Size(), fi.ModTime().Format("2006-01-02 15:04"))
		}

		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  form13f — Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Selection:")
		fmt.Fprintf(out, "    Period:        %d %s\n", cfg.Year, q)
		fmt.Fprintf(out, "    Form Type:     %s\n", cfg.FormType)
		if len(cfg.CIKs) > 0 {
			fmt.Fprintf(out, "    CIKs:          %v\n", cfg.CIKs)
		} else if cfg.All {
			fmt.Fprintln(out, "    Count:         all")
		} else {
			fmt.Fprintf(out, "    Count:         %d\n", cfg.Count)
		}
		fmt.Fprintf(out, "    Concurrency:   %d\n", cfg.Concurrency)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  EDGAR:")
		fmt.Fprintf(out, "    Archive:       %s\n", cfg.SEC.BaseURL)
		fmt.Fprintf(out, "    Rate Limit:    %d req/s\n", cfg.SEC.RateLimit)
		ua := config.CheckUserAgent(cfg)
		uaStatus := fmt.Sprintf("✅ %s (%s)", ua.Value, ua.Source)
		switch {
		case ua.IsDefault:
			uaStatus = fmt.Sprintf("⚠️  default %q, set FORM13F_SEC_USER_AGENT", ua.Value)
		case !ua.HasContact:
			uaStatus = fmt.Sprintf("⚠️  %q has no contact email", ua.Value)
		}
		fmt.Fprintf(out, "    User-Agent:    %s\n", uaStatus)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Index Cache:")
		fmt.Fprintf(out, "    Path:          %s\n", cachePath)
		fmt.Fprintf(out, "    State:         %s\n", cached)
		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}
