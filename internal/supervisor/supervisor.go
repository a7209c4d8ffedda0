// Package supervisor implements the Server personality: the boot sequence,
// the backup heartbeat, the control-plane verb handlers, and the
// coordinated shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/vbp1/pgsupervisor/internal/archive"
	"github.com/vbp1/pgsupervisor/internal/backupexclude"
	"github.com/vbp1/pgsupervisor/internal/binpath"
	"github.com/vbp1/pgsupervisor/internal/control"
	"github.com/vbp1/pgsupervisor/internal/fsutil"
	"github.com/vbp1/pgsupervisor/internal/lock"
	"github.com/vbp1/pgsupervisor/internal/pathwait"
	"github.com/vbp1/pgsupervisor/internal/pgconfig"
	"github.com/vbp1/pgsupervisor/internal/postgres"
	"github.com/vbp1/pgsupervisor/internal/process"
	"github.com/vbp1/pgsupervisor/internal/restore"
	"github.com/vbp1/pgsupervisor/internal/serverconfig"
	"github.com/vbp1/pgsupervisor/internal/shutdownprobe"
	"github.com/vbp1/pgsupervisor/internal/walreceiver"
)

const heartbeatInterval = 10 * time.Second

// Supervisor holds all process-wide state for the Server personality. There
// is exactly one instance per process.
type Supervisor struct {
	cfg        serverconfig.Config
	archiveDir string

	socketLock *lock.Lock
	ctlSocket  *control.Server

	mu            sync.Mutex
	refCount      int
	pgChild       *process.Child
	receiver      *walreceiver.Receiver
	doingRestore  bool
	inStopTrigger bool
	shutdownOnce  sync.Once
	shutdownErr   error
	done          chan struct{}
}

// New constructs a Supervisor for the given boot configuration. refCount
// starts at 1: the process that boots the Server counts as its first
// reference.
func New(cfg serverconfig.Config) *Supervisor {
	archiveDir := serverconfig.ArchiveDir(cfg.DataDir)
	return &Supervisor{
		cfg:        cfg,
		archiveDir: archiveDir,
		socketLock: lock.New(cfg.SocketLockPath()),
		refCount:   1,
		done:       make(chan struct{}),
	}
}

// Done is closed once Shutdown has fully run. The Server's top-level reactor
// must wait on this in addition to its signal-derived context: a refCount
// reaching zero or PostgreSQL exiting unexpectedly triggers Shutdown
// directly, without canceling that context.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Boot runs the 11-step Server boot sequence. Each step completes before
// the next begins.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := fsutil.MkdirP(s.cfg.SocketDir, 0o700); err != nil {
		return fmt.Errorf("supervisor: mkdir socket dir: %w", err)
	}
	if err := fsutil.MkdirP(s.archiveDir, 0o700); err != nil {
		return fmt.Errorf("supervisor: mkdir archive dir: %w", err)
	}
	backupexclude.Register(ctx, s.archiveDir)

	sentinel := filepath.Join(s.cfg.DataDir, ".NoRestoreNeeded")
	_, sentinelErr := os.Stat(sentinel)
	restoreBeforeRun := os.IsNotExist(sentinelErr) && archive.HasBackup(s.archiveDir)

	if err := fsutil.PruneArchiveOnBoot(s.archiveDir); err != nil {
		return fmt.Errorf("supervisor: prune archive: %w", err)
	}

	held, err := s.socketLock.Acquire()
	if err != nil {
		return fmt.Errorf("supervisor: acquire control-socket lock: %w", err)
	}
	if !held {
		return fmt.Errorf("supervisor: control-socket lock contended")
	}

	socketPath := s.cfg.SocketPath()
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("supervisor: remove stale socket: %w", err)
	}

	ctlSocket, err := control.Listen(socketPath, s.handleVerb)
	if err != nil {
		return fmt.Errorf("supervisor: bind control socket: %w", err)
	}
	s.ctlSocket = ctlSocket
	go func() {
		if err := ctlSocket.Serve(ctx); err != nil {
			slog.Error("supervisor: control socket serve failed", "err", err)
		}
	}()

	if restoreBeforeRun {
		if err := s.runRestore(ctx); err != nil {
			return fmt.Errorf("supervisor: restore: %w", err)
		}
	}

	backupexclude.Register(ctx, s.cfg.DataDir)

	ownBinary, err := os.Executable()
	if err != nil {
		ownBinary = os.Args[0]
	}
	if err := pgconfig.EnableFiles(s.cfg.DataDir, ownBinary); err != nil {
		return fmt.Errorf("supervisor: enable archiving: %w", err)
	}

	postgresBin, err := binpath.Resolve(binpath.EnvPostgres, "postgres")
	if err != nil {
		return fmt.Errorf("supervisor: resolve postgres binary: %w", err)
	}
	child, err := process.Spawn(ctx, s.cfg.DataDir, append([]string{postgresBin}, s.cfg.PostgresArgv...), nil)
	if err != nil {
		return fmt.Errorf("supervisor: spawn postgres: %w", err)
	}
	s.mu.Lock()
	s.pgChild = child
	s.mu.Unlock()

	listenSocket := filepath.Join(s.cfg.SocketDir, ".s.PGSQL.5432")
	if err := pathwait.Exists(ctx, listenSocket); err != nil {
		return fmt.Errorf("supervisor: wait for postgres socket: %w", err)
	}

	if err := os.WriteFile(sentinel, []byte{}, 0o600); err != nil {
		return fmt.Errorf("supervisor: write sentinel: %w", err)
	}
	backupexclude.Register(ctx, sentinel)

	receiveWALBin, err := binpath.Resolve(binpath.EnvReceiveWAL, "pg_receivewal")
	if err != nil {
		return fmt.Errorf("supervisor: resolve pg_receivewal: %w", err)
	}
	receiver, err := walreceiver.Start(ctx, receiveWALBin, s.cfg.SocketDir, s.archiveDir)
	if err != nil {
		return fmt.Errorf("supervisor: start wal receiver: %w", err)
	}
	s.mu.Lock()
	s.receiver = receiver
	s.mu.Unlock()
	if err := receiver.WaitReady(ctx); err != nil {
		return fmt.Errorf("supervisor: wait for wal receiver ready: %w", err)
	}

	go s.watchPostgres(ctx, child)
	go s.heartbeatLoop(ctx)

	slog.Info("supervisor: boot complete", "dataDir", s.cfg.DataDir, "socketDir", s.cfg.SocketDir)
	return nil
}

func (s *Supervisor) runRestore(ctx context.Context) error {
	s.mu.Lock()
	s.doingRestore = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.doingRestore = false
		s.mu.Unlock()
	}()

	postgresBin, err := binpath.Resolve(binpath.EnvPostgres, "postgres")
	if err != nil {
		return err
	}

	spawn := func(ctx context.Context, restoreSocketDir string) (*process.Child, error) {
		argv := []string{
			postgresBin,
			"-D", s.cfg.DataDir,
			"-k", restoreSocketDir,
			"-c", "listen_addresses=",
		}
		return process.Spawn(ctx, s.cfg.DataDir, argv, nil)
	}

	return restore.Run(ctx, s.cfg.DataDir, s.archiveDir, s.cfg.SocketDir, spawn)
}

// watchPostgres terminates the supervisor's reactor if PostgreSQL exits
// outside of an in-progress stop sequence.
func (s *Supervisor) watchPostgres(ctx context.Context, child *process.Child) {
	code, err := child.Wait(ctx)
	s.mu.Lock()
	inStop := s.inStopTrigger
	s.mu.Unlock()

	if inStop {
		return
	}

	if shutdownprobe.Check(ctx) {
		slog.Info("supervisor: postgres exited during system shutdown", "code", code, "err", err)
	} else {
		slog.Error("supervisor: postgres exited unexpectedly", "code", code, "err", err)
	}
	s.Shutdown(context.Background())
}

// heartbeatLoop invokes the backup decision logic every heartbeatInterval,
// skipping a tick if the previous capture has not yet finished.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var running sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !running.TryLock() {
				slog.Warn("supervisor: heartbeat tick skipped, previous capture still running")
				continue
			}
			go func() {
				defer running.Unlock()
				s.heartbeatTick(ctx)
			}()
		}
	}
}

func (s *Supervisor) heartbeatTick(ctx context.Context) {
	s.touchReceiverFiles()

	should, err := archive.ShouldBackup(s.archiveDir)
	if err != nil {
		slog.Error("supervisor: shouldBackup failed", "err", err)
		return
	}
	if !should {
		return
	}

	baseBackupBin, err := binpath.Resolve(binpath.EnvBaseBackup, "pg_basebackup")
	if err != nil {
		slog.Error("supervisor: resolve pg_basebackup failed", "err", err)
		return
	}
	if err := archive.Capture(ctx, s.archiveDir, s.cfg.SocketDir, baseBackupBin); err != nil {
		slog.Error("supervisor: capture failed", "err", err)
	}
}

func (s *Supervisor) touchReceiverFiles() {
	s.mu.Lock()
	receiver := s.receiver
	s.mu.Unlock()
	if receiver == nil || receiver.Exited() {
		return
	}
	if err := archive.TouchReceiverFiles(s.archiveDir, receiver.Pid()); err != nil {
		slog.Warn("supervisor: touch receiver files failed", "err", err)
	}
}

// handleVerb implements the three control-plane verbs.
func (s *Supervisor) handleVerb(ctx context.Context, verb control.Verb) control.Response {
	switch verb {
	case control.Incref:
		s.mu.Lock()
		s.refCount++
		count := s.refCount
		s.mu.Unlock()
		return control.Response{OK: true, RefCount: count}

	case control.Decref:
		s.mu.Lock()
		s.refCount--
		count := s.refCount
		s.mu.Unlock()
		if count <= 0 {
			go s.Shutdown(context.Background())
		}
		return control.Response{OK: true, RefCount: count}

	case control.Restart:
		s.mu.Lock()
		child := s.pgChild
		s.mu.Unlock()
		if child == nil {
			return control.Response{OK: false, Error: "no running postgres"}
		}
		if err := child.Signal(syscall.SIGHUP); err != nil {
			return control.Response{OK: false, Error: err.Error()}
		}
		return control.Response{OK: true}

	default:
		return control.Response{OK: false, Error: "unknown verb"}
	}
}

// Shutdown runs the shutdown sequence exactly once: stop PostgreSQL
// (terminating idle backends first unless restoring), stop the WAL
// receiver, unbind the control socket, and release the control-socket
// lock.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.inStopTrigger = true
		child := s.pgChild
		receiver := s.receiver
		doingRestore := s.doingRestore
		s.mu.Unlock()

		var wg sync.WaitGroup
		if child != nil && !child.Exited() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.stopPostgres(ctx, child, doingRestore)
			}()
		}
		wg.Wait()

		if receiver != nil && !receiver.Exited() {
			_ = receiver.Stop(ctx)
		}

		if s.ctlSocket != nil {
			_ = s.ctlSocket.Close()
		}
		s.shutdownErr = s.socketLock.Release()
		close(s.done)
	})
	return s.shutdownErr
}

func (s *Supervisor) stopPostgres(ctx context.Context, child *process.Child, doingRestore bool) {
	if !doingRestore {
		if conn, err := postgres.Connect(ctx, ""); err == nil {
			_ = postgres.TerminateIdleBackends(ctx, conn)
			conn.Close(ctx)
		}
	}

	code, err := process.StopGracefully(ctx, child, syscall.SIGTERM, 50*time.Second, syscall.SIGINT, 2*time.Second)
	slog.Info("supervisor: postgres stopped", "code", code, "err", err)
}

// ControlSocketLockPath returns the path of the control-socket lock this
// Supervisor holds while it runs.
func (s *Supervisor) ControlSocketLockPath() string { return s.cfg.SocketLockPath() }

