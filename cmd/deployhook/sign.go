package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"deployhook/internal/config"
	"deployhook/internal/server"

	"github.com/spf13/cobra"
)

type signOptions struct {
	secret string
	file   string
}

func newSignCmd() *cobra.Command {
	opts := &signOptions{}

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the signature header for a payload",
		Long: `Print the X-Hub-Signature-256 value for a payload read from a file or stdin.

The secret is taken from --secret, or from DEPLOYHOOK_SECRET / GITHUB_WEBHOOK_SECRET
(a .env file in the working directory is honoured).`,
		Example: `  deployhook sign --file push.json
  curl -X POST http://localhost:9000/deploy \
    -H "X-Hub-Signature-256: $(deployhook sign --file push.json)" \
    --data-binary @push.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, opts, os.LookupEnv)
		},
	}

	cmd.Flags().StringVar(&opts.secret, "secret", "", "Webhook secret (defaults to DEPLOYHOOK_SECRET)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Payload file (defaults to stdin)")

	return cmd
}

func runSign(cmd *cobra.Command, opts *signOptions, lookup config.LookupFunc) error {
	secret := opts.secret
	if secret == "" {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		for _, name := range config.SecretEnvVars {
			if v, ok := lookup(name); ok && v != "" {
				secret = v
				break
			}
		}
	}
	if secret == "" {
		return errors.New("no secret given (use --secret or set DEPLOYHOOK_SECRET)")
	}

	var (
		payload []byte
		err     error
	)
	if opts.file != "" {
		payload, err = os.ReadFile(opts.file)
	} else {
		payload, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), server.Sign(payload, secret))
	return nil
}
