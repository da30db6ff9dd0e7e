package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"certreg/pkg/address"
	"certreg/pkg/domain"
)

func NewAddressCommand() *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "address <registry|issuer|certificate> [key]",
		Short: "Derive the address of a registry record",
		Long: `Derive where a record lives. The issuer namespace takes the authority
public key, the certificate namespace takes the certificate id and the
registry namespace takes no key.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if program == "" {
				program = os.Getenv("CERTREG_PROGRAM_ID")
			}
			programID, err := domain.ParsePublicKey(program)
			if err != nil {
				return fmt.Errorf("--program: %w", err)
			}
			deriver := address.NewDeriver(programID)

			key := ""
			if len(args) == 2 {
				key = args[1]
			}

			var (
				addr address.Address
				bump uint8
			)
			switch args[0] {
			case address.NamespaceRegistry:
				addr, bump, err = deriver.Registry()
			case address.NamespaceIssuer:
				var authority domain.PublicKey
				if authority, err = domain.ParsePublicKey(key); err == nil {
					addr, bump, err = deriver.Issuer(authority)
				}
			case address.NamespaceCertificate:
				if key == "" {
					return fmt.Errorf("certificate id is required")
				}
				addr, bump, err = deriver.Certificate(key)
			default:
				return fmt.Errorf("unknown namespace %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", addr, bump)
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "base58 program id (default $CERTREG_PROGRAM_ID)")
	return cmd
}
