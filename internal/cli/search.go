package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-sh/mnemo/internal/engine"
)

var (
	searchOwner      string
	searchLimit      int
	searchOnlyLatest bool
	searchKeywords   []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an owner's memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchOwner, "owner", "", "owner id (required)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "max results")
	searchCmd.Flags().BoolVar(&searchOnlyLatest, "only-latest", false, "exclude superseded memories")
	searchCmd.Flags().StringSliceVar(&searchKeywords, "keyword", nil, "require a keyword (repeatable)")
	searchCmd.MarkFlagRequired("owner")
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if _, err := e.engine.WarmHotIndex(cmd.Context()); err != nil {
		return err
	}

	results, err := e.engine.Search(cmd.Context(), searchOwner, strings.Join(args, " "), engine.SearchOpts{
		Limit:      searchLimit,
		OnlyLatest: searchOnlyLatest,
		Keywords:   searchKeywords,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, res := range results {
		marker := " "
		if !res.Memory.IsLatest {
			marker = "~" // superseded
		}
		fmt.Printf("%2d. [%.3f]%s %s\n", i+1, res.Score, marker, firstLine(res.Memory.Content))
		fmt.Printf("      %s (%s tier)\n", res.Explanation, res.Memory.Tier)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 96 {
		s = s[:96] + "..."
	}
	return s
}
