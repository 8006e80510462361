package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra уже вывел ошибку
		os.Exit(1)
	}
}

// newRootCmd создаёт корневую команду; отдельная функция нужна тестам
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "shortlink",
		Short:        "Short-link directory service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to an env file (default .env)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
