// Package main generates the development CA and the edge server certificate,
// writing them under the "certs" directory. Point CA_FILE at certs/ca.crt on
// clients and TLS_CERT/TLS_KEY at the server pair on the edge server.
package main

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/atinyakov/sockcs/internal/certgen"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
		reuse bool
	)
	cmd := &cobra.Command{
		Use:          "certgen",
		Short:        "Generate the development CA and server certificate",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := generate(dir, hosts, reuse); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Certificates generated into %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "certs", "output directory")
	cmd.Flags().StringSliceVar(&hosts, "hosts", certgen.DefaultHosts, "server DNS names and IPs")
	cmd.Flags().BoolVar(&reuse, "reuse-ca", false, "sign with the existing CA in --dir instead of creating one")
	return cmd
}

// generate writes ca.crt/ca.key (unless reuse is set) and server.crt/server.key.
func generate(dir string, hosts []string, reuse bool) error {
	caCertPath, caKeyPath := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")

	var (
		caCert *x509.Certificate
		caKey  crypto.Signer
		err    error
	)
	if reuse {
		caCert, caKey, err = certgen.LoadCACredentials(caCertPath, caKeyPath)
		if err != nil {
			return err
		}
	} else {
		var ca certgen.PEM
		ca, caCert, caKey, err = certgen.GenerateCA("sockcs development CA")
		if err != nil {
			return err
		}
		if err := ca.Write(caCertPath, caKeyPath); err != nil {
			return err
		}
	}

	server, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	return server.Write(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
}
