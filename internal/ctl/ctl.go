package ctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/vbp1/pgsupervisor/internal/archive"
	"github.com/vbp1/pgsupervisor/internal/control"
	"github.com/vbp1/pgsupervisor/internal/ctllock"
	"github.com/vbp1/pgsupervisor/internal/lock"
	"github.com/vbp1/pgsupervisor/internal/process"
	"github.com/vbp1/pgsupervisor/internal/restore"
	"github.com/vbp1/pgsupervisor/internal/serverconfig"
)

const (
	maxStartAttempts         = 10
	controlDialTimeout       = 2 * time.Second
	serializationLockTimeout = 30 * time.Second
)

// Controller drives the start/stop/restart/passthrough sub-commands against
// a pg_ctl-compatible argv.
type Controller struct {
	opts     Options
	pgCtlBin string
	binary   string // this binary's own path, for bequeathal spawn
}

// New returns a Controller for the parsed options, using the already
// resolved vendor pg_ctl path and this binary's own path.
func New(opts Options, pgCtlBin, ownBinary string) *Controller {
	return &Controller{opts: opts, pgCtlBin: pgCtlBin, binary: ownBinary}
}

// Execute dispatches to the matching sub-command.
func (c *Controller) Execute(ctx context.Context) int {
	switch c.opts.Command {
	case "start":
		return c.start(ctx)
	case "stop":
		return c.stop(ctx)
	case "restart":
		return c.restart(ctx)
	default:
		return c.passthrough(ctx)
	}
}

func (c *Controller) socketDir() string {
	return filepath.Join(c.opts.DataDir, "..", "run")
}

func (c *Controller) start(ctx context.Context) int {
	if c.opts.DataDir == "" {
		fmt.Fprintln(os.Stderr, "ctl: no data directory (NoControlPath)")
		return 7
	}

	serLock := ctllock.New(filepath.Join(c.socketDir(), ".xpg_ctl.pid"))
	lockCtx, cancel := context.WithTimeout(ctx, serializationLockTimeout)
	defer cancel()
	if err := serLock.Acquire(lockCtx, serializationLockTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "ctl: serialization lock: %v\n", err)
		return 1
	}
	defer serLock.Release()

	socketLockPath := filepath.Join(c.socketDir(), ".xpg.skt.lock")
	socketPath := filepath.Join(c.socketDir(), ".xpg.skt")

	bar := newSpinner("waiting for postgres")
	defer bar.Abort(true)

	for attempt := 0; attempt < maxStartAttempts; attempt++ {
		l := lock.New(socketLockPath)
		held, err := l.Acquire()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ctl: lock acquire: %v\n", err)
			return 1
		}

		if held {
			return c.launchServer(ctx, l)
		}

		resp, err := control.Call(socketPath, control.Incref, controlDialTimeout)
		if err != nil {
			continue
		}
		if !resp.OK {
			fmt.Fprintf(os.Stderr, "ctl: incref failed: %s\n", resp.Error)
			return 1
		}
		slog.Info("ctl: attached to running server", "refCount", resp.RefCount)
		return 0
	}

	fmt.Fprintln(os.Stderr, "ctl: gave up after 10 attempts")
	return 1
}

// launchServer bequeaths the held lock and spawns the Server process via
// pg_ctl so that the vendor wrapper handles its logging.
func (c *Controller) launchServer(ctx context.Context, held *lock.Lock) int {
	cfg := serverconfig.Config{DataDir: c.opts.DataDir, SocketDir: c.socketDir()}
	archiveDir := serverconfig.ArchiveDir(cfg.DataDir)

	sentinel := filepath.Join(cfg.DataDir, ".NoRestoreNeeded")
	if _, err := os.Stat(sentinel); os.IsNotExist(err) && archive.HasBackup(archiveDir) {
		if err := c.runDirectRestore(ctx, cfg, archiveDir); err != nil {
			fmt.Fprintf(os.Stderr, "ctl: restore: %v\n", err)
			return 1
		}
	}

	// Write the INHERITABLE_LOCK carrier before spawning, but don't block on
	// the successor claiming it until after the spawn is underway: nothing
	// can inherit the lock until the Server process exists and calls
	// Acquire, so awaiting the bequeathal first would deadlock every time.
	if err := held.BequeathPrepare(); err != nil {
		fmt.Fprintf(os.Stderr, "ctl: bequeath: %v\n", err)
		return 1
	}

	args := []string{"-p", c.binary, "start"}
	if c.opts.DataDir != "" {
		args = append(args, "-D", c.opts.DataDir)
	}
	cmd := exec.CommandContext(ctx, c.pgCtlBin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	runErr := make(chan error, 1)
	go func() { runErr <- cmd.Run() }()

	if err := held.BequeathAwait(serializationLockTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "ctl: bequeath: %v\n", err)
		return 1
	}
	if err := <-runErr; err != nil {
		fmt.Fprintf(os.Stderr, "ctl: spawn server: %v\n", err)
		return 1
	}
	return 0
}

func (c *Controller) runDirectRestore(ctx context.Context, cfg serverconfig.Config, archiveDir string) error {
	// The restore spawn function shells out to postgres directly; the
	// controller does not have a supervisor instance, so it builds the
	// minimal restore-mode invocation itself.
	spawn := func(ctx context.Context, restoreSocketDir string) (*process.Child, error) {
		return process.Spawn(ctx, cfg.DataDir, []string{"postgres", "-D", cfg.DataDir, "-k", restoreSocketDir, "-c", "listen_addresses="}, nil)
	}
	return restore.Run(ctx, cfg.DataDir, archiveDir, cfg.SocketDir, spawn)
}

func (c *Controller) stop(ctx context.Context) int {
	serLock := ctllock.New(filepath.Join(c.socketDir(), ".xpg_ctl.pid"))
	lockCtx, cancel := context.WithTimeout(ctx, serializationLockTimeout)
	defer cancel()
	if err := serLock.Acquire(lockCtx, serializationLockTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "ctl: serialization lock: %v\n", err)
		return 1
	}
	defer serLock.Release()

	socketDir, err := c.resolveSocketDir()
	if err != nil {
		return c.passthrough(ctx)
	}

	resp, err := control.Call(filepath.Join(socketDir, ".xpg.skt"), control.Decref, controlDialTimeout)
	if err != nil {
		return c.passthrough(ctx)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "ctl: decref failed: %s\n", resp.Error)
		return 1
	}
	return 0
}

func (c *Controller) restart(ctx context.Context) int {
	socketDir, err := c.resolveSocketDir()
	if err != nil {
		return 0
	}
	resp, err := control.Call(filepath.Join(socketDir, ".xpg.skt"), control.Restart, controlDialTimeout)
	if err != nil {
		return 0
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "ctl: restart failed: %s\n", resp.Error)
		return 1
	}
	return 0
}

func (c *Controller) resolveSocketDir() (string, error) {
	return socketDirFromPostmasterPid(filepath.Join(c.opts.DataDir, "postmaster.pid"))
}

// passthrough execs pg_ctl with the controller's original argv, inheriting
// the environment so a Server launched this way still inherits the lock
// carrier.
func (c *Controller) passthrough(ctx context.Context) int {
	cmd := exec.CommandContext(ctx, c.pgCtlBin, c.opts.Rest...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = os.Environ()
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "ctl: passthrough: %v\n", err)
		return 1
	}
	return 0
}

func newSpinner(label string) *mpb.Bar {
	p := mpb.New(mpb.WithWidth(20), mpb.WithRefreshRate(150*time.Millisecond))
	return p.New(0, mpb.SpinnerStyle(),
		mpb.PrependDecorators(decor.Name(label)),
	)
}
