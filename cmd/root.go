package cmd

import (
	"fmt"
	"os"

	"github.com/elmanelman/sql-judge/cmd/columns"
	"github.com/elmanelman/sql-judge/cmd/judgereq"
	"github.com/elmanelman/sql-judge/cmd/plan"
	"github.com/elmanelman/sql-judge/cmd/serve"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sql-judge",
	Short: "Judges SQL answers against reference queries",
	Long: `sql-judge decides whether a submitted SELECT query is equivalent to a reference
query on a dataset provisioned from the question's schema preview.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serve.Command())
	rootCmd.AddCommand(judgereq.Command())
	rootCmd.AddCommand(plan.Command())
	rootCmd.AddCommand(columns.Command())
}
