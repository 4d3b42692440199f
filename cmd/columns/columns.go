package columns

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/sqlscan"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns <sql>",
		Short: "Print the output column names inferred from a SELECT statement.",
		Long: `Columns prints the inferred output columns as a JSON list, or null when they
cannot be inferred (SELECT *, non-SELECT statements). Authors use it to fill in a
question's required output columns.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols := sqlscan.OutputColumns(strings.Join(args, " "))
			out, err := json.Marshal(cols)
			if err != nil {
				return errors.Wrapf(err, "error encoding columns")
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
	return cmd
}
