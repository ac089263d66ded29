package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wardenhq/warden"
	"github.com/wardenhq/warden/trust"
)

// rootState carries the flags and lazily built components shared by all
// subcommands.
type rootState struct {
	configPath string
	workspace  string
	verbose    bool

	cfg *warden.Config
}

func newRootCmd() *cobra.Command {
	st := &rootState{}

	cmd := &cobra.Command{
		Use:           "warden",
		Short:         "Sandboxed command execution with a signed policy trust layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.init()
		},
	}

	cmd.PersistentFlags().StringVar(&st.configPath, "config", "", "config file (default ~/.warden/config.yaml)")
	cmd.PersistentFlags().StringVarP(&st.workspace, "workspace", "w", "", "workspace root (default current directory)")
	cmd.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newExecCmd(st),
		newSandboxCmd(st),
		newMdCmd(st),
	)
	return cmd
}

// init loads the config and sets up logging. Runs once per invocation
// from the persistent pre-run hook.
func (st *rootState) init() error {
	level := slog.LevelInfo
	if st.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	path := st.configPath
	if path == "" {
		var err error
		if path, err = warden.DefaultConfigPath(); err != nil {
			return err
		}
	}
	cfg, err := warden.LoadConfig(path)
	if err != nil {
		return err
	}
	st.cfg = cfg

	if st.workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		st.workspace = wd
	}
	abs, err := filepath.Abs(st.workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	st.workspace = abs
	return nil
}

// executor builds the sandbox executor from the loaded config.
func (st *rootState) executor() (*warden.Executor, error) {
	return warden.NewExecutor(st.cfg, warden.WithLogger(slog.Default()))
}

// securityContext builds the trust context for the workspace, using the
// default key and audit locations under ~/.warden.
func (st *rootState) securityContext() (*trust.SecurityContext, error) {
	keyPath, err := trust.DefaultKeyPath()
	if err != nil {
		return nil, err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	sc, err := trust.NewSecurityContext(st.workspace, keyPath, filepath.Join(home, ".warden", "audit.jsonl"))
	if err != nil {
		return nil, err
	}
	sc.Strict = st.cfg.Security.StrictPolicy
	sc.Inject = trust.InjectOptions{
		DisablePolicy: st.cfg.Security.DisablePolicy,
		DisableSuffix: st.cfg.Security.DisableSuffix,
	}
	return sc, nil
}

// stdoutIsTTY reports whether stdout is an interactive terminal; plain
// output is used when piping.
func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// statusMark returns a pass/fail/skip marker, symbolic on a TTY and
// textual when piped.
func statusMark(passed, skipped bool) string {
	if stdoutIsTTY() {
		switch {
		case skipped:
			return "○"
		case passed:
			return "✓"
		default:
			return "✗"
		}
	}
	switch {
	case skipped:
		return "SKIP"
	case passed:
		return "PASS"
	default:
		return "FAIL"
	}
}
