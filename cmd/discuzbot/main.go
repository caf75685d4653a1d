package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "discuzbot",
		Short: "discuzbot - Discuz forum account keeper",
		Long: `discuzbot keeps Discuz forum accounts active: it logs in, performs the
daily check-in across the common plugin variants, and can post AI-composed
replies. Outcomes are stored per account and day, so repeated runs are safe.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
