package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	verrors "github.com/vitalsync/vitalsync/internal/errors"
	"github.com/vitalsync/vitalsync/internal/observability"
	"github.com/vitalsync/vitalsync/internal/output"
)

var (
	offsetsFormat string
	offsetsRoute  string
	offsetsUser   string
)

var offsetsCmd = &cobra.Command{
	Use:   "offsets",
	Short: "Inspect and manage stored offsets",
}

var offsetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored offsets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		application, cleanup, err := buildApp(ctx, observability.CLILogger)
		if err != nil {
			return err
		}
		defer cleanup()

		if application.store == nil {
			return verrors.New(verrors.KindValidation, "offset listing requires a persistent store")
		}

		format, err := output.ParseFormat(offsetsFormat)
		if err != nil {
			return err
		}

		offs, err := application.store.List(ctx, offsetsRoute)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatOffsets(offs)
		if err != nil {
			return err
		}
		cmd.Println(rendered)
		return nil
	},
}

var offsetsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the offset for one (user, route) pair",
	Long: `Reset the stored offset for one (user, route) pair so the next cycle
re-polls from the user's start date. Use the versioned user ID as shown
by 'offsets list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if offsetsUser == "" || offsetsRoute == "" {
			return verrors.New(verrors.KindValidation, "both --user and --route are required")
		}

		application, cleanup, err := buildApp(ctx, observability.CLILogger)
		if err != nil {
			return err
		}
		defer cleanup()

		if application.store == nil {
			return verrors.New(verrors.KindValidation, "offset reset requires a persistent store")
		}

		if err := application.store.Reset(ctx, offsetsRoute, offsetsUser); err != nil {
			return err
		}
		observability.CLILogger.Info("offset reset",
			zap.String("user", offsetsUser),
			zap.String("route", offsetsRoute))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(offsetsCmd)
	offsetsCmd.AddCommand(offsetsListCmd)
	offsetsCmd.AddCommand(offsetsResetCmd)

	offsetsListCmd.Flags().StringVarP(&offsetsFormat, "format", "f", "table", "output format (table, json)")
	offsetsListCmd.Flags().StringVar(&offsetsRoute, "route", "", "filter by route")

	offsetsResetCmd.Flags().StringVar(&offsetsUser, "user", "", "versioned user ID")
	offsetsResetCmd.Flags().StringVar(&offsetsRoute, "route", "", "route name")
}
