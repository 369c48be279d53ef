package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vodhub/vodhub/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "vodhub",
	Short: "Vodhub ingests IPTV provider catalogs into a canonical TMDB-backed library",
	Long: `Vodhub periodically pulls VOD catalogs from configured Xtream and AGTV
providers, matches every title against TMDB, and reconciles the results
into a canonical catalog with per-provider stream fallbacks.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of vodhub",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vodhub v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runJobCmd)
}

func initConfig() {
	// Skip config loading for version command
	if len(os.Args) > 1 && os.Args[1] == "version" {
		return
	}

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(2)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
