package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goodtune/snsdetox/internal/domain"
)

var resetCmd = &cobra.Command{
	Use:   "reset [DOMAIN]",
	Short: "Reset today's usage",
	Long: `Reset the recorded usage and any hard lock for DOMAIN, or for every site
when no domain is given. A running daemon should be reset through its API
instead so open tabs are notified.`,
	Example: `  snsdetox reset twitter.com
  snsdetox -c config.yaml reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := offlineContext()
	defer cancel()

	if len(args) == 0 {
		if err := o.ledger.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear usage: %w", err)
		}
		_, _ = fmt.Fprintln(os.Stdout, "✅ Usage cleared for all sites")
		return nil
	}

	d := domain.Normalize(args[0])
	if d == "" {
		return fmt.Errorf("invalid domain: %q", args[0])
	}
	if err := o.ledger.Reset(ctx, d); err != nil {
		return fmt.Errorf("failed to reset %s: %w", d, err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "✅ Usage reset for %s\n", d)
	return nil
}
