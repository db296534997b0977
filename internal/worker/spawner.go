package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"dashshot/internal/models"

	"github.com/rs/zerolog/log"
)

// Handle is a running worker as seen by its parent.
type Handle interface {
	// Messages yields control messages and is closed once the worker's
	// stdout ends.
	Messages() <-chan Message
	// Kill terminates the worker process. Killing an exited worker is not
	// an error.
	Kill() error
}

type Spawner interface {
	Spawn(ctx context.Context, task *models.Task) (Handle, error)
}

// ProcessSpawner starts workers as child processes of Executable. The task
// travels as JSON on the child's stdin.
type ProcessSpawner struct {
	Executable string
	Args       []string
	Env        []string
}

// NewProcessSpawner re-executes the running binary with the worker
// subcommand unless an explicit executable is configured.
func NewProcessSpawner(executable string) (*ProcessSpawner, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		executable = self
	}
	return &ProcessSpawner{Executable: executable, Args: []string{"worker"}}, nil
}

func (s *ProcessSpawner) Spawn(ctx context.Context, task *models.Task) (Handle, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	cmd := exec.Command(s.Executable, s.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = os.Stderr
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	h := &processHandle{cmd: cmd, messages: make(chan Message, 4)}
	go func() {
		ReadMessages(ctx, stdout, h.messages)
		err := cmd.Wait()
		log.Debug().Err(err).Str("taskId", task.ID).Int("workerPid", cmd.Process.Pid).Msg("Worker exited")
	}()

	log.Info().Str("taskId", task.ID).Str("dashboardId", task.DashboardID).
		Int("workerPid", cmd.Process.Pid).Msg("🚀 Worker spawned")
	return h, nil
}

type processHandle struct {
	cmd      *exec.Cmd
	messages chan Message
	once     sync.Once
	err      error
}

func (h *processHandle) Messages() <-chan Message {
	return h.messages
}

func (h *processHandle) Kill() error {
	h.once.Do(func() {
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.err = err
		}
	})
	return h.err
}
