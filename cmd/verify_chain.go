package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-core/internal/core"
)

func verifyChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-chain",
		Short: "Replay the audit log and verify the hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Bootstrap(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			report := c.Audit.VerifyChain()
			if report.IsValid {
				fmt.Printf("chain valid: %d entries checked\n", report.CheckedNodes)
				return nil
			}
			fmt.Printf("chain INVALID: %d entries checked, first break at seq %d\n", report.CheckedNodes, *report.FirstBreak)
			return fmt.Errorf("audit chain verification failed")
		},
	}
}
