package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show deck statistics",
	RunE:  runStats,
}

var (
	statsUser string
	statsDeck string
)

func init() {
	statsCmd.Flags().StringVarP(&statsUser, "user", "u", "", "Account ID")
	statsCmd.Flags().StringVarP(&statsDeck, "deck", "d", "", "Deck ID (default: all decks)")
	statsCmd.MarkFlagRequired("user")
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	now := time.Now()
	if _, err := a.health.SyncAccountHealth(ctx, statsUser, now); err != nil {
		a.logger.Warn("Health sync failed", "user", statsUser, "error", err)
	}

	deckIDs := []string{statsDeck}
	if statsDeck == "" {
		decks, err := a.db.ListDecks(ctx, statsUser)
		if err != nil {
			return err
		}
		deckIDs = deckIDs[:0]
		for _, d := range decks {
			deckIDs = append(deckIDs, d.ID)
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "DECK\tCARDS\tDUE\tHEALTH")
	for _, m := range domain.Maturities {
		fmt.Fprintf(tw, "\t%s", m)
	}
	fmt.Fprintln(tw)

	for _, id := range deckIDs {
		st, err := a.reviews.Stats(ctx, statsUser, id, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s", st.Deck.Name, st.Cards, st.DueToday, percent(st.Deck.Retrievability))
		for _, m := range domain.Maturities {
			fmt.Fprintf(tw, "\t%d", st.Maturity[m])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
