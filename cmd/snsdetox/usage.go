package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/snsdetox/internal/restriction"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's usage per site",
	Long:  `Show the time recorded today for every monitored domain with usage, its restriction status and any active hard lock.`,
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := offlineContext()
	defer cancel()

	current, err := o.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	now := time.Now()
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Printf("%-24s %10s %10s %10s  %s\n", "SITE", "USED", "GRAYSCALE", "BLOCK", "STATUS")

	domains, err := o.ledger.Domains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list usage: %w", err)
	}

	shown := 0
	for _, d := range domains {
		if _, ok := current.MatchSite(d); !ok {
			continue
		}
		rec, err := o.ledger.Read(ctx, d)
		if err != nil {
			return fmt.Errorf("failed to read usage for %s: %w", d, err)
		}
		lock, locked, err := o.ledger.GetOverride(ctx, d)
		if err != nil {
			return fmt.Errorf("failed to read hard lock for %s: %w", d, err)
		}
		locked = locked && lock.ActiveAt(now)

		th := current.ThresholdsFor(d)
		status := restriction.Effective(restriction.Evaluate(rec.Total(), th), locked)

		line := fmt.Sprintf("%-24s %10s %10s %10s  %s",
			d,
			rec.Total().Truncate(time.Second),
			th.Grayscale,
			th.Block,
			status,
		)
		if locked {
			line += fmt.Sprintf(" (%s left)", lock.Remaining(now).Truncate(time.Second))
		}
		_, _ = statusColor(status).Println(line)
		shown++
	}

	if shown == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No usage recorded today")
	}

	return nil
}

func statusColor(s restriction.Status) *color.Color {
	switch s {
	case restriction.StatusGrayscale:
		return color.New(color.FgYellow)
	case restriction.StatusBlocked:
		return color.New(color.FgRed)
	case restriction.StatusHardLocked:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgGreen)
	}
}
