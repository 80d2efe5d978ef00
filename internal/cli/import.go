package cli

import (
	"fmt"

	"github.com/conorfennell/grove/internal/importer"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [path-or-git-url]",
	Short: "Import markdown notes into a deck, or resync every deck",
	Long: `Import Q:/A:/C: notes from a directory or git repository into the named deck.
Without a source, every deck of the user is resynced with its registered sources.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var (
	importUser string
	importDeck string
)

func init() {
	importCmd.Flags().StringVarP(&importUser, "user", "u", "", "Account ID")
	importCmd.Flags().StringVarP(&importDeck, "deck", "d", "", "Deck name (required with a source)")
	importCmd.Flags().String("repos-dir", "repos", "Directory git sources are cloned into")
	importCmd.MarkFlagRequired("user")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		results, err := a.imports.SyncAll(cmd.Context(), importUser)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No sources configured. Add one with: grove import --user <id> --deck <name> <path/or/url.git>")
		}
		for _, res := range results {
			printResult(cmd, res)
		}
		return nil
	}

	if importDeck == "" {
		return fmt.Errorf("--deck is required when importing a source")
	}
	res, err := a.imports.Import(cmd.Context(), importUser, importDeck, args[0])
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res *importer.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "deck %s: %d sources, %d notes, %d new cards, %d removed, %d errors\n",
		res.DeckID, res.Sources, res.Parsed, res.Inserted, res.Removed, len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}
}
