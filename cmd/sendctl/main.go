package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sendwatch/internal/apperr"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	profile    string
	assumeYes  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		if exitError(err) {
			os.Exit(1)
		}
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sendctl",
		Short:         "Inspect and refresh send tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config file")
	root.PersistentFlags().StringVar(&opts.profile, "profile", envOr("SENDWATCH_PROFILE", ""), "operator profile key")
	root.PersistentFlags().BoolVarP(&opts.assumeYes, "yes", "y", false, "answer yes to confirmation prompts")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newTasksCmd(opts),
		newTodayCmd(opts),
		newCheckSendsCmd(opts),
		newCheckTasksCmd(opts),
		newTodayCreatedCmd(opts),
		newExportCmd(opts),
		newJournalCmd(opts),
		newCustomersCmd(opts),
		newLogsCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// describe turns an operation error into the single line shown to the operator.
func describe(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindDeclined:
		return "aborted"
	case apperr.KindCancelled:
		return "interrupted"
	}
	if msg := apperr.UserMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}
