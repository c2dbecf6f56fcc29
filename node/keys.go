package node

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/btcl2/l2node/config"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/multisig"
)

func keysCommand(conf *config.Config, configPath *string) *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Manage the validator keystore",
	}
	c.AddCommand(&cobra.Command{
		Use:          "generate <name>...",
		Short:        "Generate and store new keys",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, conf); err != nil {
				return err
			}
			ks, err := keys.NewKeystore(conf.KeysDir())
			if err != nil {
				return err
			}
			return generateKeys(c.OutOrStdout(), ks, os.Getenv(conf.Keys.PassphraseEnv), args)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:          "list",
		Short:        "List stored keys and their x-only public keys",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, conf); err != nil {
				return err
			}
			ks, err := keys.NewKeystore(conf.KeysDir())
			if err != nil {
				return err
			}
			return listKeys(c.OutOrStdout(), ks)
		},
	})
	return c
}

func generateKeys(w io.Writer, ks *keys.Keystore, passphrase string, names []string) error {
	for _, name := range names {
		pub, err := ks.Generate(keys.Locator(name), passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", name, hex.EncodeToString(keys.XOnly(pub)))
	}
	return nil
}

func listKeys(w io.Writer, ks *keys.Keystore) error {
	locators, err := ks.List()
	if err != nil {
		return err
	}
	for _, loc := range locators {
		pub, err := ks.PublicKey(loc)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%x\n", loc, pub)
	}
	return nil
}

func custodyCommand(conf *config.Config, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:          "custody",
		Short:        "Print the custody address deposits are sent to",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, conf); err != nil {
				return err
			}
			ks, err := keys.NewKeystore(conf.KeysDir())
			if err != nil {
				return err
			}
			d, err := deriveCustody(ks, conf)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), d.Address.EncodeAddress())
			return nil
		},
	}
}

// deriveCustody builds the custody descriptor from public keys only, so no
// passphrase is needed.
func deriveCustody(ks *keys.Keystore, conf *config.Config) (*multisig.Descriptor, error) {
	params, err := conf.Params()
	if err != nil {
		return nil, err
	}
	if err := conf.Keys.Validate(); err != nil {
		return nil, err
	}
	pubs, err := custodyKeys(ks, conf.Keys)
	if err != nil {
		return nil, err
	}
	var opts []multisig.Opt
	if conf.Keys.FirstKeyInternal {
		opts = append(opts, multisig.WithFirstKeyInternal())
	}
	return multisig.Derive(pubs, params, opts...)
}
