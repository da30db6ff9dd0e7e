package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"certreg/pkg/domain"
)

type keyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func NewKeygenCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 signer key pair",
		Long:  "Generate an ed25519 key pair. The public key is the signer identity; the private key is printed as a base58 seed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			pk, err := domain.PublicKeyFromEd25519(pub)
			if err != nil {
				return err
			}
			kp := keyPair{PublicKey: pk.String(), PrivateKey: base58.Encode(priv.Seed())}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(kp)
			}
			fmt.Fprintf(out, "public_key:  %s\nprivate_key: %s\n", kp.PublicKey, kp.PrivateKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the key pair as JSON")
	return cmd
}
