package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/trust"
)

func newMdCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "md",
		Short: "Manage the signed workspace policy document (WARDEN.md)",
	}
	cmd.AddCommand(
		newMdSignCmd(st),
		newMdVerifyCmd(st),
		newMdStatusCmd(st),
		newMdAuditCmd(st),
	)
	return cmd
}

func newMdSignCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "sign",
		Short: "Sign the policy document with this device's key",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := st.securityContext()
			if err != nil {
				return err
			}
			m, err := sc.SignDocument()
			if err != nil {
				return err
			}
			fmt.Printf("signed %s\n", sc.DocPath)
			fmt.Printf("  content hash: %s\n", m.ContentHash)
			fmt.Printf("  manifest:     %s\n", sc.ManifestPath)
			return nil
		},
	}
}

func newMdVerifyCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the policy document against its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := st.securityContext()
			if err != nil {
				return err
			}
			status, err := sc.VerifyDocument()
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", sc.DocPath, status)
			if status != trust.StatusValid {
				return exitWith(exitVerify, "verification result: %s", status)
			}
			return nil
		},
	}
}

func newMdStatusCmd(st *rootState) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document, manifest, and audit chain state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := st.securityContext()
			if err != nil {
				return err
			}

			status, err := sc.VerifyDocument()
			if err != nil {
				return err
			}
			chainErr := sc.VerifyAuditChain()

			manifest, _ := trust.ReadManifest(sc.ManifestPath)

			if jsonOut {
				out := map[string]any{
					"document":       sc.DocPath,
					"verification":   status.String(),
					"chain_intact":   chainErr == nil,
					"policy_layer":   !sc.Inject.DisablePolicy,
					"builtin_suffix": !sc.Inject.DisableSuffix,
				}
				if manifest != nil {
					out["signed_at"] = manifest.SignedAt
					out["content_hash"] = manifest.ContentHash
				}
				if chainErr != nil {
					out["chain_error"] = chainErr.Error()
				}
				if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Printf("Document:     %s\n", sc.DocPath)
				fmt.Printf("Verification: %s\n", status)
				if manifest != nil {
					fmt.Printf("Signed at:    %s\n", manifest.SignedAt.Format("2006-01-02 15:04:05 MST"))
				}
				if chainErr == nil {
					fmt.Printf("Audit chain:  intact (%s)\n", sc.Chain.Path())
				} else {
					fmt.Printf("Audit chain:  BROKEN: %v\n", chainErr)
				}
				fmt.Printf("Layers:       policy=%s suffix=%s\n",
					enabledWord(!sc.Inject.DisablePolicy),
					enabledWord(!sc.Inject.DisableSuffix),
				)
			}

			if status == trust.StatusTampered || chainErr != nil {
				return exitWith(exitVerify, "trust state compromised")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func newMdAuditCmd(st *rootState) *cobra.Command {
	var (
		jsonOut bool
		filter  string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log, verifying the hash chain first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := st.securityContext()
			if err != nil {
				return err
			}

			if err := sc.VerifyAuditChain(); err != nil {
				return err
			}

			entries, err := sc.Chain.Entries(audit.Kind(filter))
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				for _, e := range entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s  %-16s", e.Timestamp, e.Kind)
				keys := make([]string, 0, len(e.Payload))
				for k := range e.Payload {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s=%s", k, e.Payload[k])
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSONL")
	cmd.Flags().StringVar(&filter, "filter", "", "only show entries of this kind")
	return cmd
}
