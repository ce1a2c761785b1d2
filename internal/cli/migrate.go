package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xavierca1/immigration-crm/internal/infra/database"
)

func NewMigrateCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the PostgreSQL schema",
		Long:         "Create or update tables, indexes, the invoice sequence and the payment freeze trigger. Safe to run repeatedly.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			db, err := database.NewDBConnection(databaseURL)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	return cmd
}
