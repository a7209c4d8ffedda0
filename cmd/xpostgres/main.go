// Command xpostgres is a single binary wearing three personalities,
// selected the same way the original macOS Server.app installation did: by
// which name it was invoked under. Symlinked or renamed to something
// containing "ctl", it behaves as the Controller (pg_ctl-compatible);
// invoked as "archive <src> <dest>" it behaves as the Archiver
// (archive_command); otherwise it behaves as the Server, wrapping
// PostgreSQL itself.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbp1/pgsupervisor/internal/archiver"
	"github.com/vbp1/pgsupervisor/internal/binpath"
	"github.com/vbp1/pgsupervisor/internal/ctl"
	"github.com/vbp1/pgsupervisor/internal/debug"
	"github.com/vbp1/pgsupervisor/internal/serverconfig"
	"github.com/vbp1/pgsupervisor/internal/signalctx"
	"github.com/vbp1/pgsupervisor/internal/supervisor"
	"github.com/vbp1/pgsupervisor/internal/xlog"
)

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	if len(argv) >= 2 && argv[1] == "archive" {
		return runArchiver(argv)
	}
	if strings.Contains(filepath.Base(argv[0]), "ctl") {
		return runController(argv[1:])
	}
	return runServer(argv[1:])
}

func runArchiver(argv []string) int {
	if len(argv) != 4 {
		fmt.Fprintln(os.Stderr, "usage: xpostgres archive <src> <dest>")
		return 1
	}
	if err := archiver.Run(argv[2], argv[3]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runController(argv []string) int {
	opts := ctl.ParseArgv(argv)
	pgCtlBin, err := binpath.Resolve(binpath.EnvPgCtl, "pg_ctl")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 7
	}
	ownBinary, err := os.Executable()
	if err != nil {
		ownBinary = os.Args[0]
	}

	controller := ctl.New(opts, pgCtlBin, ownBinary)
	return controller.Execute(context.Background())
}

func runServer(argv []string) int {
	debugEnabled := os.Getenv("XPG_LOG_DEBUG") != ""
	logger := xlog.Setup(os.Stdout, debugEnabled, debugEnabled)
	_ = logger

	cfg, err := serverconfig.Parse(argv, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel, _ := signalctx.WithSignals(context.Background())
	defer cancel()

	sup := supervisor.New(cfg)
	debug.StopIf("before-boot")
	if err := sup.Boot(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	debug.StopIf("after-boot")

	// watchPostgres and the Decref-to-zero control verb both trigger
	// Shutdown directly without canceling ctx (only OS signals do that), so
	// wait on whichever finishes first and then run Shutdown in case the
	// signal path got there first.
	select {
	case <-ctx.Done():
	case <-sup.Done():
	}
	_ = sup.Shutdown(context.Background())
	return 0
}
