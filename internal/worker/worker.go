package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dashshot/internal/compiler"
	"dashshot/internal/config"
	"dashshot/internal/executor"
	"dashshot/internal/models"
	"dashshot/pkg/chrome"

	"github.com/rs/zerolog/log"
)

type (
	LaunchFunc  func(ctx context.Context, opts chrome.LaunchOptions) (*chrome.Process, error)
	ConnectFunc func(ctx context.Context, debugURL string) (executor.Driver, error)
)

// Deps is everything the child side needs besides the task.
type Deps struct {
	Compiler *compiler.Compiler
	Launch   LaunchFunc
	Connect  ConnectFunc
	Executor executor.Options
	Chrome   config.ChromeConfig
	Capture  config.CaptureConfig
	// Out is the control channel.
	Out io.Writer
}

// NewDeps wires the real browser launcher and chromedp driver.
func NewDeps(cfg *config.Config, out io.Writer) Deps {
	return Deps{
		Compiler: compiler.New(compiler.OptionsFromConfig(cfg)),
		Launch:   chrome.Launch,
		Connect: func(ctx context.Context, debugURL string) (executor.Driver, error) {
			return executor.NewChromeDriver(ctx, debugURL)
		},
		Executor: executor.OptionsFromTiming(cfg.Timing),
		Chrome:   cfg.Chrome,
		Capture:  cfg.Capture,
		Out:      out,
	}
}

// ReadTask decodes the task a parent wrote to the worker's stdin.
func ReadTask(r io.Reader) (*models.Task, error) {
	var task models.Task
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if task.DashboardID == "" {
		return nil, fmt.Errorf("task %s has no dashboard id", task.ID)
	}
	return &task, nil
}

// Run captures one dashboard. The compile happens again here so that the
// parent never has to ship executable code, only the resolved events. A
// done message is written only after the screenshot file is in place.
func Run(ctx context.Context, task *models.Task, deps Deps) error {
	logger := log.With().Str("taskId", task.ID).Str("dashboardId", task.DashboardID).Logger()

	script, err := deps.Compiler.Compile(task.Events, task.TenantID, task.DashboardID)
	if err != nil {
		return fmt.Errorf("failed to compile capture script: %w", err)
	}

	proc, err := deps.Launch(ctx, chrome.LaunchOptions{
		Path:       deps.Chrome.Path,
		ProfileDir: script.Header.ProfileDir,
		Proxy:      script.Header.Proxy,
		Headless:   script.Header.Headless,
		Stealth:    script.Header.Stealth,
		Width:      task.Width,
		Height:     task.Height,
		BasePort:   deps.Chrome.DebugPort,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer proc.Stop()

	if err := WritePID(deps.Out, proc.PID); err != nil {
		return err
	}
	logger.Info().Int("pid", proc.PID).Str("proxy", script.Header.Proxy).Msg("🌐 Browser ready")

	driver, err := deps.Connect(ctx, proc.DebugURL())
	if err != nil {
		return fmt.Errorf("failed to attach to browser: %w", err)
	}

	result, err := executor.Run(ctx, script, driver, deps.Executor)
	if err != nil {
		return err
	}
	if result.Degraded {
		logger.Warn().Msg("⚠️ Saving degraded page screenshot")
	}

	path := models.ScreenshotPath(deps.Capture.Dir, task.DashboardID, task.Width, task.Height, deps.Capture.Extension)
	if err := writeFile(path, result.Image); err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("bytes", len(result.Image)).Bool("degraded", result.Degraded).Msg("📸 Screenshot saved")

	return WriteDone(deps.Out)
}

// writeFile replaces path in one rename so readers never see a partial
// image.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*")
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move screenshot into place: %w", err)
	}
	return nil
}
