package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	ingestOwner string
	ingestTitle string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a text file (or stdin) into the knowledge graph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "owner id (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestCmd.MarkFlagRequired("owner")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var text string
	var source string
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		text = string(data)
		source = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
		source = "stdin"
	}

	title := ingestTitle
	if title == "" {
		title = source
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if _, err := e.engine.WarmHotIndex(cmd.Context()); err != nil {
		return err
	}

	result, err := e.engine.Ingest(cmd.Context(), ingestOwner, text, title)
	if err != nil {
		return err
	}

	fmt.Printf("document %s: %d memories, %d relationships\n",
		result.Document.ID, len(result.MemoryIDs), len(result.Relationships))
	for _, r := range result.Relationships {
		fmt.Printf("  %s -[%s %.2f]-> %s\n", short(r.FromID), r.Kind, r.Confidence, short(r.ToID))
	}
	return nil
}

func short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
