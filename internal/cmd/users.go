package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vitalsync/vitalsync/internal/observability"
	"github.com/vitalsync/vitalsync/internal/output"
)

var (
	usersFormat  string
	usersRefresh bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the enrolled users",
	Long: `List the enrolled, complete users from the configured user directory.

With --refresh the directory is re-fetched before listing; otherwise the
cached snapshot is served when still fresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		application, cleanup, err := buildApp(ctx, observability.CLILogger)
		if err != nil {
			return err
		}
		defer cleanup()

		format, err := output.ParseFormat(usersFormat)
		if err != nil {
			return err
		}

		if usersRefresh {
			if err := application.repo.ApplyPendingUpdates(ctx); err != nil {
				return err
			}
		}

		users, err := application.repo.Stream(ctx)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatUsers(users)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.Flags().StringVarP(&usersFormat, "format", "f", "table", "output format (table, json)")
	usersCmd.Flags().BoolVar(&usersRefresh, "refresh", false, "force a directory refresh before listing")
}
