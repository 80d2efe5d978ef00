package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Inspect and rebuild memory health",
}

var healthSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Recompute card retrievability and deck/account health",
	RunE:  runHealthSync,
}

var (
	healthUser  string
	healthForce bool
)

func init() {
	healthSyncCmd.Flags().StringVarP(&healthUser, "user", "u", "", "Account ID")
	healthSyncCmd.Flags().BoolVar(&healthForce, "force", false, "Resync even if already synced today")
	healthSyncCmd.MarkFlagRequired("user")
	healthCmd.AddCommand(healthSyncCmd)
}

func runHealthSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	now := time.Now()
	if healthForce {
		err = a.health.ForceSync(ctx, healthUser, now)
	} else {
		var synced bool
		synced, err = a.health.SyncAccountHealth(ctx, healthUser, now)
		if err == nil && !synced {
			fmt.Fprintln(cmd.OutOrStdout(), "already synced today (use --force to rebuild)")
		}
	}
	if err != nil {
		return err
	}

	acct, err := a.db.GetAccount(ctx, healthUser)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "account %s: retrievability %s over %d reviewed cards\n",
		acct.ID, percent(acct.Retrievability), acct.ReviewedCount)
	return nil
}

func percent(r *float64) string {
	if r == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *r*100)
}
