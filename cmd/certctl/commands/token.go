package commands

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"certreg/pkg/platform/middleware/signer"
)

func NewTokenCommand() *cobra.Command {
	var (
		key      string
		method   string
		path     string
		bodyFile string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signer token for one request",
		Long: `Mint a signer token bound to an HTTP method, path and body. Send it as
"Authorization: Signer <token>". The body must be byte-identical to the one
hashed here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := parsePrivateKey(key)
			if err != nil {
				return err
			}
			var body []byte
			if bodyFile != "" {
				if body, err = os.ReadFile(bodyFile); err != nil {
					return fmt.Errorf("read body: %w", err)
				}
			}
			token, err := signer.Mint(priv, strings.ToUpper(method), path, body, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "base58 private key or seed")
	cmd.Flags().StringVar(&method, "method", http.MethodPost, "HTTP method")
	cmd.Flags().StringVar(&path, "path", "", "request path, e.g. /certificates")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "file holding the exact request body")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "token lifetime (at most 5m)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
