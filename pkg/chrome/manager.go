package chrome

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/rs/zerolog/log"
)

var ErrChromeNotFound = errors.New("chrome not found")

// LaunchOptions describe one browser process dedicated to a capture.
type LaunchOptions struct {
	Path       string
	ProfileDir string
	Proxy      string
	Headless   bool
	// Stealth hides the automation fingerprint from the page.
	Stealth bool
	Width   int
	Height  int
	// BasePort is the first debugging port tried.
	BasePort     int
	ReadyTimeout time.Duration
}

// Process is a running browser.
type Process struct {
	Command *exec.Cmd
	Port    int
	PID     int

	once sync.Once
	done chan struct{}
}

func (p *Process) DebugURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", p.Port)
}

// Args builds the command line for a capture browser.
func Args(opts LaunchOptions, port int) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + opts.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
		"--disable-sync",
		"--no-pings",
		"--no-crash-upload",
		"--ignore-certificate-errors",
		"--hide-scrollbars",
		"--mute-audio",
	}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.Width, opts.Height))
	}
	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	if opts.Stealth {
		args = append(args, "--disable-blink-features=AutomationControlled")
	} else {
		args = append(args, "--enable-automation")
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy-server="+opts.Proxy)
	}
	return append(args, "about:blank")
}

// Launch starts a browser and waits until its DevTools endpoint answers.
func Launch(ctx context.Context, opts LaunchOptions) (*Process, error) {
	chromePath := GetChromePath(opts.Path)
	if chromePath == "" {
		return nil, ErrChromeNotFound
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 15 * time.Second
	}
	if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}

	port := findAvailablePort(opts.BasePort)
	if port == 0 {
		return nil, fmt.Errorf("no available port found")
	}

	args := Args(opts, port)
	cmd := exec.Command(chromePath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	log.Debug().Str("path", chromePath).Strs("args", args).Msg("📋 Executing Chrome command")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	p := &Process{Command: cmd, Port: port, PID: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	log.Info().Int("pid", p.PID).Int("port", port).Str("profile", opts.ProfileDir).Msg("🚀 Chrome started")

	if err := waitForChromeReady(ctx, p, opts.ReadyTimeout); err != nil {
		p.Stop()
		return nil, fmt.Errorf("Chrome failed to start properly: %w", err)
	}
	return p, nil
}

// waitForChromeReady polls the DevTools version endpoint.
func waitForChromeReady(ctx context.Context, p *Process, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dt := devtool.New(p.DebugURL())
	for {
		if _, err := dt.Version(ctx); err == nil {
			log.Debug().Int("port", p.Port).Msg("✅ Chrome debugging endpoint is ready")
			return nil
		}
		select {
		case <-p.done:
			return fmt.Errorf("Chrome process exited unexpectedly")
		case <-ctx.Done():
			return fmt.Errorf("Chrome debugging endpoint not ready within %v", timeout)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Stop asks the browser to exit and kills it after three seconds.
func (p *Process) Stop() {
	p.once.Do(func() {
		if p.Command == nil || p.Command.Process == nil {
			return
		}
		if err := p.Command.Process.Signal(os.Interrupt); err != nil {
			log.Debug().Err(err).Int("pid", p.PID).Msg("Failed to interrupt Chrome")
		}
		select {
		case <-p.done:
			log.Debug().Int("pid", p.PID).Msg("✅ Chrome terminated gracefully")
		case <-time.After(3 * time.Second):
			log.Warn().Int("pid", p.PID).Msg("🔨 Graceful shutdown timeout, force killing Chrome")
			_ = p.Command.Process.Kill()
			<-p.done
		}
	})
}

// Kill terminates the process with the given pid. A process that is already
// gone is not an error.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// findAvailablePort returns the first free port in the hundred ports from
// base.
func findAvailablePort(base int) int {
	if base <= 0 {
		base = 9222
	}
	for port := base; port <= base+100; port++ {
		l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
		if err != nil {
			continue
		}
		l.Close()
		return port
	}
	return 0
}
