package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsOwner string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge graph statistics for an owner",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "owner id (required)")
	statsCmd.MarkFlagRequired("owner")
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	stats, err := e.engine.Stats(cmd.Context(), statsOwner)
	if err != nil {
		return err
	}

	fmt.Printf("memories:      %d (%d hot, %d cold)\n", stats.Memories, stats.HotTier, stats.ColdTier)
	fmt.Printf("relationships: %d\n", stats.Relationships)
	for _, kind := range []string{"updates", "extends", "derives", "similar"} {
		fmt.Printf("  %-8s %d\n", kind, stats.ByKind[kind])
	}
	return nil
}
