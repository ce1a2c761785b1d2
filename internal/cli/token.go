package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/auth"
)

type tokenOptions struct {
	Subject string
	Name    string
	Role    string
	TTL     time.Duration
	Secret  string
	Issuer  string
}

func NewTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint a signed access token for a staff member",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := mintToken(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "immigration-crm"
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "", "actor id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "SUPERADMIN|MANAGER|EMPLOYEE|CONSULTANT|CLIENT (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&opts.Secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", issuer, "token issuer")
	cmd.MarkFlagRequired("sub")
	cmd.MarkFlagRequired("role")

	return cmd
}

func mintToken(opts *tokenOptions) (string, error) {
	if opts.Secret == "" {
		return "", fmt.Errorf("--secret or JWT_SECRET is required")
	}
	if opts.TTL <= 0 {
		return "", fmt.Errorf("--ttl must be positive")
	}
	role, ok := entity.ParseRole(opts.Role)
	if !ok {
		return "", fmt.Errorf("invalid role %q: must be one of %v", opts.Role, entity.Roles)
	}

	svc := auth.NewTokenService(opts.Secret, opts.Issuer)
	return svc.Issue(entity.Actor{ID: opts.Subject, Name: opts.Name, Role: role}, opts.TTL)
}
