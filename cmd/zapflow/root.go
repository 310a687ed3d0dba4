package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapflow",
	Short: "Zapflow drives automated conversation flows over messaging channels",
	Long:  `Zapflow executes visual conversation graphs against a messaging gateway: sessions, menus, media delivery, and lead bookkeeping.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().String("config", "", "Path to the YAML config file")
}
