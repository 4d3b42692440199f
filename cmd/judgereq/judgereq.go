package judgereq

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/cmd/internal/cmdutil"
	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/elmanelman/sql-judge/judge"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var (
		requestPath string
		dsn         string
		cfg         = config.Default()
	)

	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Judge a single request and print the verdict.",
		Long: `Judge reads a JSON request ({"studentSql", "referenceSql", "requiredOutputColumns",
"schemaPreview", "questionKey"}) and prints the verdict as JSON. Without --dsn the
request is judged against a throwaway in-memory SQLite database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			data, err := cmdutil.ReadInput(requestPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var req judge.Request
			if err := json.Unmarshal(data, &req); err != nil {
				return errors.Wrapf(err, "error decoding request")
			}

			ctx := context.Background()
			conn, err := dbconn.Connect(ctx, "judge", dsn)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close(ctx) }()

			o, err := judge.NewOrchestratorFromConfig(logger, conn, cfg)
			if err != nil {
				return err
			}
			v, err := o.Judge(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}

	cmd.PersistentFlags().StringVar(
		&requestPath,
		"request",
		"-",
		"path to the JSON request, - for stdin",
	)
	cmd.PersistentFlags().StringVar(
		&dsn,
		"dsn",
		"sqlite://:memory:",
		"URL of the judging database (mysql://... or sqlite://...)",
	)
	cmd.PersistentFlags().StringVar(
		&cfg.IsolationConfig.Policy,
		"isolation",
		cfg.IsolationConfig.Policy,
		"isolation policy, lock or scratch",
	)
	cmd.PersistentFlags().BoolVar(
		&cfg.ProvisioningConfig.Strict,
		"strict",
		cfg.ProvisioningConfig.Strict,
		"fail the attempt when a provisioning statement fails at the backend",
	)
	cmd.PersistentFlags().IntVar(
		&cfg.ExecutorConfig.MaxRows,
		"max-rows",
		cfg.ExecutorConfig.MaxRows,
		"maximum number of rows a query may return, 0 for unlimited",
	)
	cmdutil.RegisterLoggerFlags(cmd)
	return cmd
}
