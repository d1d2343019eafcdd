package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrToolMissing is returned when the validator tool directory does not exist.
var ErrToolMissing = errors.New("validator: tool directory missing")

// Default command templates for the rocrate-validator tool.
var (
	DefaultCommand        = []string{"poetry", "run", "rocrate-validator", "validate"}
	DefaultInstallCommand = []string{"poetry", "install"}
)

// DefaultTimeout bounds a single validator invocation.
const DefaultTimeout = 2 * time.Minute

// waitDelay bounds how long a killed tool may keep its output pipes open.
const waitDelay = time.Second

// CommandConfig configures the external validator process.
type CommandConfig struct {
	// ToolDir is the working directory of every invocation.
	ToolDir string
	// Command is run with the absolute crate path appended.
	Command []string
	// InstallCommand installs the tool's dependencies.
	InstallCommand []string
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Command runs an external validator as a subprocess. Exit status 0 means
// valid; any other exit, a timeout or a failure to start means invalid.
type Command struct {
	dir     string
	command []string
	install []string
	timeout time.Duration
	logger  *slog.Logger

	installOnce sync.Once
	installErr  error
}

// NewCommand checks that the tool directory exists and returns a Command.
func NewCommand(cfg CommandConfig) (*Command, error) {
	info, err := os.Stat(cfg.ToolDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrToolMissing, cfg.ToolDir)
	}
	c := &Command{
		dir:     cfg.ToolDir,
		command: cfg.Command,
		install: cfg.InstallCommand,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if len(c.command) == 0 {
		c.command = DefaultCommand
	}
	if len(c.install) == 0 {
		c.install = DefaultInstallCommand
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// InstallDependencies runs the install command. It executes at most once per
// Command; later calls return the first result.
func (c *Command) InstallDependencies(ctx context.Context) error {
	c.installOnce.Do(func() {
		c.logger.Info("validator: installing dependencies", slog.String("command", strings.Join(c.install, " ")))
		cmd := exec.CommandContext(ctx, c.install[0], c.install[1:]...)
		cmd.Dir = c.dir
		killGroup(cmd)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			c.installErr = fmt.Errorf("validator: install dependencies: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	})
	return c.installErr
}

// Check implements Checker.
func (c *Command) Check(ctx context.Context, path string) (Verdict, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Invalid, err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string(nil), c.command[1:]...), abs)
	cmd := exec.CommandContext(cmdCtx, c.command[0], args...)
	cmd.Dir = c.dir
	killGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if ctx.Err() != nil {
		return Invalid, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("validator: timed out", slog.String("path", abs), slog.Duration("timeout", c.timeout))
		return Invalid, nil
	}
	if err != nil {
		c.logger.Debug("validator: rejected",
			slog.String("path", abs),
			slog.String("error", err.Error()),
			slog.String("stderr", strings.TrimSpace(stderr.String())))
		return Invalid, nil
	}
	return Valid, nil
}

var _ Checker = (*Command)(nil)
