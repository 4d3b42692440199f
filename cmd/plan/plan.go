package plan

import (
	"fmt"

	"github.com/elmanelman/sql-judge/cmd/internal/cmdutil"
	"github.com/elmanelman/sql-judge/provision"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var (
		previewPath string
		dialectName string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the provisioning script for a schema preview.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, err := provision.DialectByName(dialectName)
			if err != nil {
				return err
			}
			data, err := cmdutil.ReadInput(previewPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			preview, rejections, err := provision.ParsePreview(data)
			if err != nil {
				return err
			}
			for _, r := range rejections {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %s\n", r)
			}
			p := provision.NewPlan(preview, dialect)
			if p == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "no table survived sanitization")
				return nil
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), p.Script())
			return err
		},
	}

	cmd.PersistentFlags().StringVar(
		&previewPath,
		"preview",
		"-",
		"path to the schema preview JSON, - for stdin",
	)
	cmd.PersistentFlags().StringVar(
		&dialectName,
		"dialect",
		"mysql",
		"target dialect, mysql or sqlite",
	)
	return cmd
}
