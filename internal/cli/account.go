package cli

import (
	"fmt"
	"time"

	"github.com/conorfennell/grove/internal/domain"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account and print its ID",
	RunE:  runAccountCreate,
}

var accountSetTimezoneCmd = &cobra.Command{
	Use:   "set-timezone",
	Short: "Change the timezone used for an account's day boundaries",
	RunE:  runAccountSetTimezone,
}

var (
	accountName     string
	accountTimezone string
	accountUser     string
)

func init() {
	accountCreateCmd.Flags().StringVar(&accountName, "name", "", "Display name")
	accountCreateCmd.Flags().StringVar(&accountTimezone, "tz", "", "IANA timezone, e.g. Europe/Dublin (default UTC)")
	accountCreateCmd.MarkFlagRequired("name")
	accountCmd.AddCommand(accountCreateCmd)

	accountSetTimezoneCmd.Flags().StringVarP(&accountUser, "user", "u", "", "Account ID")
	accountSetTimezoneCmd.Flags().StringVar(&accountTimezone, "tz", "", "IANA timezone, e.g. Europe/Dublin (empty resets to the default)")
	accountSetTimezoneCmd.MarkFlagRequired("user")
	accountCmd.AddCommand(accountSetTimezoneCmd)
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	if accountTimezone != "" {
		if _, err := time.LoadLocation(accountTimezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", accountTimezone, err)
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	acct := &domain.Account{Name: accountName, Timezone: accountTimezone, CreatedAt: time.Now().UTC()}
	if err := a.db.CreateAccount(cmd.Context(), acct); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), acct.ID)
	return nil
}

func runAccountSetTimezone(cmd *cobra.Command, args []string) error {
	if accountTimezone != "" {
		if _, err := time.LoadLocation(accountTimezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", accountTimezone, err)
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.SetAccountTimezone(cmd.Context(), accountUser, accountTimezone); err != nil {
		return err
	}
	a.logger.Info("Account timezone changed", "user", accountUser, "timezone", accountTimezone)
	fmt.Fprintf(cmd.OutOrStdout(), "account %s: timezone %s\n", accountUser, a.health.Location(&domain.Account{Timezone: accountTimezone}))
	return nil
}
