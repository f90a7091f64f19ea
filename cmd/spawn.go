package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-core/internal/core"
)

func spawnCmd() *cobra.Command {
	var name string

	c := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a top-level agent and print its ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := core.Bootstrap(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			agent, err := h.Spawner.Spawn(name)
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			fmt.Printf("spawned agent %s (%s)\n", agent.ID, agent.Name)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "agent", "agent display name")
	return c
}
