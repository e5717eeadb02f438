package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/goodtune/snsdetox/internal/settings"
)

var settingsFormat string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the site settings document",
	Long: `Export, import or reset the synced site settings document. A running daemon
picks up changes on SIGHUP.`,
}

var settingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the stored settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsExport,
}

var settingsImportCmd = &cobra.Command{
	Use:     "import FILE",
	Short:   "Validate and store a settings document",
	Example: `  snsdetox settings import sites.yaml`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSettingsImport,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default site list",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	settingsExportCmd.Flags().StringVar(&settingsFormat, "format", settings.FormatYAML, "Output format (json or yaml)")

	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsImportCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsExport(cmd *cobra.Command, args []string) error {
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

	data, err := settings.Encode(current, settingsFormat)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	if err == nil && len(data) > 0 && data[len(data)-1] != '\n' {
		_, err = fmt.Fprintln(os.Stdout)
	}
	return err
}

func runSettingsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	next, err := settings.Decode(data)
	if err != nil {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ Settings validation failed: %v\n", err)
		return err
	}

	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := offlineContext()
	defer cancel()

	if err := o.settings.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	_, _ = color.New(color.FgGreen).Fprintf(os.Stdout, "✅ Stored %d sites from %s\n", len(next.Sites), args[0])
	for _, site := range next.Sites {
		_, _ = fmt.Fprintf(os.Stdout, "   - %s (%dm / %dm)\n", site.Domain, site.GrayscaleMinutes, site.BlockMinutes)
	}
	return nil
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := offlineContext()
	defer cancel()

	if err := o.settings.Save(ctx, settings.Defaults()); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, "✅ Settings restored to defaults")
	return nil
}
