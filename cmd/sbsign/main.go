// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/phrack/sbsigntools"
	"github.com/phrack/sbsigntools/fileio"
	"github.com/phrack/sbsigntools/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mozilla.org/pkcs7"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sbsign",
		Short:         "Sign and inspect PE/COFF images for UEFI Secure Boot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSignCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sbsign version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "sbsign", version)
			return nil
		},
	}
}

func newSignCmd() *cobra.Command {
	var (
		certPath string
		keyPath  string
		output   string
		detached bool
	)

	cmd := &cobra.Command{
		Use:   "sign <efi-image>",
		Short: "Sign a PE/COFF image with an Authenticode signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if certPath == "" || keyPath == "" {
				return fmt.Errorf("sbsign: --cert and --key are required")
			}
			if output == "" {
				output = path + ".signed"
			}

			raw, err := fileio.Load(path)
			if err != nil {
				return err
			}

			img, err := sbsign.LoadBytes(raw, &sbsign.Options{
				Logger: logrus.StandardLogger(),
				Diagnostic: func(msg string) {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
				},
			})
			if err != nil {
				return fmt.Errorf("sbsign: parsing %s: %w", path, err)
			}

			idc, err := img.IndirectDataContent()
			if err != nil {
				return err
			}

			s, err := signer.NewPKCS7Signer(certPath, keyPath)
			if err != nil {
				return err
			}
			signedData, err := s.Sign(idc)
			if err != nil {
				return fmt.Errorf("sbsign: signing %s: %w", path, err)
			}

			if err := img.AddSignature(signedData); err != nil {
				return err
			}

			if detached {
				sigs, err := img.Signatures()
				if err != nil {
					return err
				}
				payload, err := img.WriteDetached(len(sigs) - 1)
				if err != nil {
					return err
				}
				return fileio.Write(output, payload)
			}

			out, err := img.WriteAttached()
			if err != nil {
				return err
			}
			return fileio.Write(output, out)
		},
	}

	cmd.Flags().StringVarP(&certPath, "cert", "c", "", "signing certificate (PEM)")
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "signing key (PEM)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <efi-image>.signed)")
	cmd.Flags().BoolVarP(&detached, "detached", "d", false, "write only the detached signature")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <efi-image>",
		Short: "List Authenticode signatures present in a PE/COFF image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			raw, err := fileio.Load(path)
			if err != nil {
				return err
			}
			img, err := sbsign.LoadBytes(raw, nil)
			if err != nil {
				return fmt.Errorf("sbsign: parsing %s: %w", path, err)
			}

			certs, err := img.Signatures()
			if err != nil {
				return err
			}
			if len(certs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no signatures")
				return nil
			}
			for i, c := range certs {
				subject := signatureSubject(c.Data)
				fmt.Fprintf(cmd.OutOrStdout(), "signature %d: %d bytes, type 0x%04x, subject: %s\n", i, len(c.Data), c.CertType, subject)
			}
			return nil
		},
	}
}

// signatureSubject parses der as a PKCS#7 SignedData and returns its
// signer certificate's subject, or "(unparsable)" if der isn't a
// SignedData sbsign recognizes.
func signatureSubject(der []byte) string {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return "(unparsable)"
	}
	cert := p7.GetOnlySigner()
	if cert == nil {
		return "(unknown)"
	}
	return cert.Subject.String()
}

func newRemoveCmd() *cobra.Command {
	var (
		index  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "remove <efi-image>",
		Short: "Remove one Authenticode signature from a PE/COFF image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if output == "" {
				output = strings.TrimSuffix(path, ".signed")
			}

			raw, err := fileio.Load(path)
			if err != nil {
				return err
			}
			img, err := sbsign.LoadBytes(raw, nil)
			if err != nil {
				return fmt.Errorf("sbsign: parsing %s: %w", path, err)
			}

			if err := img.RemoveSignature(index); err != nil {
				return err
			}
			out, err := img.WriteAttached()
			if err != nil {
				return err
			}
			return fileio.Write(output, out)
		},
	}

	cmd.Flags().IntVarP(&index, "signature", "s", 0, "index of the signature to remove")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
