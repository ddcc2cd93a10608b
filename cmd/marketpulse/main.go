package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "marketpulse",
	Short: "Macro market dashboard backend",
	Long: `marketpulse tracks the S&P 500, NASDAQ, the 10-year treasury yield and
the monthly change of the M2 money supply. Observations come from FRED through
two proxy tiers; any series that cannot be fetched is synthesized so the state
is always complete. A stock watchlist and an AI narrative of the macro picture
are served next to the series.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults by APP_ENV)")
	rootCmd.AddCommand(serveCmd, refreshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
