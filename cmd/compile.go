package main

import (
	"encoding/json"
	"fmt"
	"os"

	"dashshot/internal/compiler"
	"dashshot/internal/models"

	"github.com/spf13/cobra"
)

var (
	compileDashboard string
	compileTenant    string
)

var compileCmd = &cobra.Command{
	Use:   "compile <request.json>",
	Short: "Print the capture script compiled from a recorded capture request",
	Long: `Reads a capture request as the shell sends it, applies the capture settings,
resolves secrets and prints the compiled script. Secret values are masked.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compileDashboard, "dashboard", "", "dashboard id (default from the request)")
	compileCmd.Flags().StringVar(&compileTenant, "tenant", "", "tenant id (default from the request)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var req models.CaptureRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if compileDashboard != "" {
		req.DashboardID = compileDashboard
	}
	if compileTenant != "" {
		req.TenantID = compileTenant
	}
	if req.DashboardID == "" {
		req.DashboardID = "dashboard"
	}

	settings := req.ResolveSettings(models.Settings{
		Width:    cfg.Capture.DefaultWidth,
		Height:   cfg.Capture.DefaultHeight,
		Pause:    cfg.Capture.DefaultPause,
		Interval: cfg.Capture.DefaultInterval,
	})
	events, err := compiler.ResolveSecrets(compiler.PopulateSettings(req.Dashboard.Steps, settings), req.Secrets)
	if err != nil {
		return err
	}
	script, err := compiler.New(compiler.OptionsFromConfig(cfg)).Compile(events, req.TenantID, req.DashboardID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# platform: %s\n", compiler.Platform(events))
	fmt.Fprintf(out, "# account: %s\n", compiler.Account(events))
	fmt.Fprintf(out, "# terminal url: %s\n", script.TerminalURL)
	fmt.Fprint(out, script.Text())
	return nil
}
