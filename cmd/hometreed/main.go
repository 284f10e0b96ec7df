// Command hometreed runs the background staging daemon: it watches the
// configured manage patterns, debounces changes, and periodically stages
// them into the bare repository under the cross-process lock.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/safedep/dry/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/daemonbuild"
	"github.com/hometree/hometree/internal/ipcsrv"
	"github.com/hometree/hometree/internal/watch"
)

var configDirFlag string

func main() {
	cmd := &cobra.Command{
		Use:   "hometreed",
		Short: "Background staging daemon for a hometree-managed home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	cmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "override the configuration directory")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveDirs() (daemonbuild.Dirs, error) {
	configDir := configDirFlag
	if configDir == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return daemonbuild.Dirs{}, err
		}
		configDir = dir
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return daemonbuild.Dirs{}, err
	}
	runtimeDir, err := config.RuntimeDir()
	if err != nil {
		return daemonbuild.Dirs{}, err
	}
	homeDir, err := config.HomeDir()
	if err != nil {
		return daemonbuild.Dirs{}, err
	}

	for _, dir := range []string{configDir, stateDir, runtimeDir} {
		if err := config.EnsureDir(dir, 0o700); err != nil {
			return daemonbuild.Dirs{}, err
		}
	}

	return daemonbuild.Dirs{
		ConfigDir:  configDir,
		StateDir:   stateDir,
		RuntimeDir: runtimeDir,
		HomeDir:    homeDir,
	}, nil
}

func run() error {
	dirs, err := resolveDirs()
	if err != nil {
		return err
	}

	log.Infof("hometreed: starting, home=%s state=%s", dirs.HomeDir, dirs.StateDir)

	// dry/log's package-level Debugf/Errorf/Infof calls write through the
	// standard library logger under the hood; point it at a rotating file
	// so the daemon doesn't accumulate an unbounded log on disk.
	logWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dirs.StateDir, "daemon.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	defer logWriter.Close()
	stdlog.SetOutput(logWriter)

	deps, err := daemonbuild.Build(dirs)
	if err != nil {
		return err
	}

	reload := func() (watch.Deps, error) {
		return daemonbuild.Build(dirs)
	}

	daemon := watch.New(deps, reload)

	srv, err := ipcsrv.Listen(dirs.RuntimeDir, daemon)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				if err := daemon.Reload(); err != nil {
					log.Errorf("hometreed: reload failed: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				if err := daemon.Shutdown(); err != nil {
					log.Errorf("hometreed: shutdown failed: %v", err)
				}
				return
			}
		}
	}()
	defer signal.Stop(sigCh)

	go func() {
		if err := srv.Serve(); err != nil {
			log.Errorf("hometreed: ipc server error: %v", err)
		}
	}()

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	log.Infof("hometreed: shut down cleanly")
	return nil
}
