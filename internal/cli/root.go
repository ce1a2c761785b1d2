package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the operator CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crmctl",
		Short:         "Operator tooling for the immigration CRM",
		SilenceErrors: true,
	}

	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}
