package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"sendwatch/internal/apperr"
	"sendwatch/internal/dashboard"
	"sendwatch/internal/export"
	"sendwatch/internal/models"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = readLine(in, cmd.ErrOrStderr(), "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv("SENDWATCH_PASSWORD")
			}
			if password == "" {
				if password, err = readSecret(cmd.InOrStdin(), in, cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}

			return withApp(cmd.Context(), opts, false, func(a *app) error {
				s, err := a.sessions.Login(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%d organizations)\n", s.Operator.Email, len(s.Operator.Orgs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "operator email")
	cmd.Flags().StringVar(&password, "password", "", "operator password (or SENDWATCH_PASSWORD)")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				if err := a.sessions.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

type filterFlags struct {
	search   string
	today    bool
	expired  bool
	state    string
	page     int
	pageSize int
}

func (f *filterFlags) bind(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive label filter")
	cmd.Flags().BoolVar(&f.today, "today", false, "only tasks scheduled today")
	cmd.Flags().BoolVar(&f.expired, "expired", false, "only tasks whose last planned send has passed")
	cmd.Flags().StringVar(&f.state, "state", "", "today state: doing, notyet, done, warning")
	if paging {
		cmd.Flags().IntVar(&f.page, "page", 1, "page number, starting at 1")
		cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "rows per page")
	}
}

func (f *filterFlags) filter() tasklist.Filter {
	return tasklist.Filter{
		Search:      strings.TrimSpace(f.search),
		TodayOnly:   f.today,
		ExpiredOnly: f.expired,
		State:       models.ParseTodayState(f.state),
	}
}

func newTasksCmd(opts *rootOptions) *cobra.Command {
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List send tasks with their statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				view := a.board.Tasks(dashboard.Query{
					Filter:   flags.filter(),
					Page:     flags.page - 1,
					PageSize: flags.pageSize,
				})
				printTasks(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newTodayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's tasks and their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				snap := a.board.Snapshot()
				rows := snap.Rows(tasklist.Filter{TodayOnly: true})
				printTasks(cmd.OutOrStdout(), dashboard.View{Page: tasklist.Paginate(rows, 0, len(rows)+1)})
				printSummary(cmd.OutOrStdout(), snap.Summary())
				return nil
			})
		},
	}
}

func newCheckSendsCmd(opts *rootOptions) *cobra.Command {
	var (
		flags filterFlags
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "check-sends [task-uuid...]",
		Short: "Ask the backend to recompute send statistics",
		Long: "Recomputes statistics for the given task ids. Without ids the\n" +
			"filtered list is used; --all ignores the filter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				confirm := newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.assumeYes)

				var (
					res *statsync.Result
					err error
				)
				switch {
				case len(args) > 0:
					res, err = a.board.RefreshStatsOf(cmd.Context(), args, confirm)
				case all:
					res, err = a.board.RefreshStats(cmd.Context(), dashboard.TargetAll, tasklist.Filter{}, confirm)
				default:
					a.board.Selection().SetAllPages(true)
					res, err = a.board.RefreshStats(cmd.Context(), dashboard.TargetSelection, flags.filter(), confirm)
				}
				printResult(cmd.OutOrStdout(), res)
				return err
			})
		},
	}
	flags.bind(cmd, false)
	cmd.Flags().BoolVar(&all, "all", false, "every loaded task")
	return cmd
}

func newCheckTasksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-tasks",
		Short: "Reconcile added and removed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				confirm := newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.assumeYes)
				res, err := a.board.CheckTasks(cmd.Context(), confirm)
				printResult(cmd.OutOrStdout(), res)
				return err
			})
		},
	}
}

func newTodayCreatedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today-created",
		Short: "Recompute statistics of tasks created today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				confirm := newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.assumeYes)
				res, err := a.board.RefreshTodayCreated(cmd.Context(), confirm)
				printResult(cmd.OutOrStdout(), res)
				return err
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		flags filterFlags
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the task table to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				if dir == "" {
					dir = a.cfg.Exports.Path
				}
				path, err := export.SaveFile(dir, a.board.Snapshot(), export.Options{Filter: flags.filter()})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	flags.bind(cmd, false)
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (defaults to exports.path)")
	return cmd
}

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent refresh sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, false, func(a *app) error {
				sessions, err := a.journal.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printJournal(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of sessions")
	return cmd
}

// exitError reports whether err should fail the process.
func exitError(err error) bool {
	return err != nil && !errors.Is(err, apperr.ErrDeclined)
}
