package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden"
)

func newExecCmd(st *rootState) *cobra.Command {
	var (
		modeFlag   string
		readPaths  []string
		writePaths []string
		timeout    int
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Run a command under the sandbox policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := warden.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			exe, err := st.executor()
			if err != nil {
				return err
			}
			pol, err := exe.BuildPolicy(mode, st.workspace, readPaths, writePaths)
			if err != nil {
				return err
			}

			var opts []warden.RunOption
			if timeout > 0 {
				opts = append(opts, warden.WithTimeout(timeout))
			}
			opts = append(opts, warden.WithStdin(os.Stdin))

			res, err := exe.Run(cmd.Context(), strings.Join(args, " "), pol, opts...)
			if err != nil {
				return err
			}

			os.Stdout.WriteString(res.Stdout)
			os.Stderr.WriteString(res.Stderr)

			if res.Exceeded != nil {
				return exitWith(exitFailure, "command terminated: %s", res.Exceeded)
			}
			if res.ExitCode != 0 {
				code := res.ExitCode
				if code < 0 {
					// Killed before exiting; no status to propagate.
					code = exitFailure
				}
				return exitWith(code, "command exited %d", res.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "workspace-write", "policy mode: workspace-write, read-only, full-access")
	cmd.Flags().StringArrayVar(&readPaths, "allow-read", nil, "extra readable path prefix (repeatable)")
	cmd.Flags().StringArrayVar(&writePaths, "allow-write", nil, "extra writable path prefix (repeatable)")
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 0, "timeout in seconds (default from config)")

	return cmd
}
