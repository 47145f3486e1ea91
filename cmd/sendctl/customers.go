package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/customers"
	"sendwatch/internal/models"

	"github.com/spf13/cobra"
)

func newCustomersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Manage customer accounts and the tasks they can see",
	}
	cmd.AddCommand(
		newCustomersListCmd(opts),
		newCustomersCreateCmd(opts),
		newCustomersDeleteCmd(opts),
		newCustomersPasswdCmd(opts),
		newCustomersAssignCmd(opts),
		newCustomersTasksCmd(opts),
	)
	return cmd
}

func newCustomersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List customer accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(a *app) error {
				list, err := a.accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				printCustomers(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
}

func newCustomersCreateCmd(opts *rootOptions) *cobra.Command {
	var in models.NewCustomer

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				var err error
				buf := bufio.NewReader(cmd.InOrStdin())
				if in.Password, err = readSecret(cmd.InOrStdin(), buf, cmd.ErrOrStderr(), "Customer password: "); err != nil {
					return err
				}
			}
			return withSession(cmd.Context(), opts, func(a *app) error {
				name, err := a.accounts.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Customer %s created\n", name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "login name of the customer")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "display name of the customer")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password (prompted when empty)")
	return cmd
}

func newCustomersDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete customer accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(a *app) error {
				confirm := newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.assumeYes)
				if err := a.accounts.Delete(cmd.Context(), args, confirm); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d customers\n", len(args))
				return nil
			})
		},
	}
}

func newCustomersPasswdCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd NAME",
		Short: "Change a customer's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := bufio.NewReader(cmd.InOrStdin())
			oldPassword, err := readSecret(cmd.InOrStdin(), buf, cmd.ErrOrStderr(), "Old password: ")
			if err != nil {
				return err
			}
			newPassword, err := readSecret(cmd.InOrStdin(), buf, cmd.ErrOrStderr(), "New password: ")
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), opts, func(a *app) error {
				if err := a.accounts.UpdatePassword(cmd.Context(), args[0], oldPassword, newPassword); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
				return nil
			})
		},
	}
}

func newCustomersAssignCmd(opts *rootOptions) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "assign NAME [task-uuid...]",
		Short: "Set the tasks a customer can see",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ids := args[0], args[1:]
			if len(ids) == 0 && !revoke {
				return apperr.New(apperr.KindEmptyInput, "assign customer tasks", "no tasks given, pass --clear to revoke every task")
			}
			return withSession(cmd.Context(), opts, func(a *app) error {
				if err := a.accounts.AssignTasks(cmd.Context(), name, ids); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now sees %d tasks\n", name, len(ids))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "clear", false, "revoke every task when no ids are given")
	return cmd
}

func newCustomersTasksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks NAME",
		Short: "Show the tasks of a customer with their progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(a *app) error {
				list, err := a.accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, c := range list {
					if c.Name != args[0] {
						continue
					}
					rows, err := a.accounts.Tasks(cmd.Context(), c.TaskUUIDs)
					if err != nil {
						return err
					}
					printCustomerTasks(cmd.OutOrStdout(), rows)
					return nil
				}
				return fmt.Errorf("customer not found: %s", args[0])
			})
		},
	}
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	var (
		q        models.LogQuery
		desc     bool
		csv      bool
		dir      string
		selected []string
	)

	cmd := &cobra.Command{
		Use:   "logs TASK-UUID",
		Short: "Drill into the send log of one task",
		Long: "Prints the task's trigger rate and one page of its send log.\n" +
			"--csv writes the matching rows (or --select rows) to a file instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if desc {
				q.Sort = "desc"
			}
			task := args[0]
			return withSession(cmd.Context(), opts, func(a *app) error {
				if csv {
					data, err := a.accounts.DownloadCSV(cmd.Context(), task, selected, q)
					if err != nil {
						return err
					}
					if dir == "" {
						dir = a.cfg.Exports.Path
					}
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("create export dir: %w", err)
					}
					path := filepath.Join(dir, customers.FileName(task, time.Now()))
					if err := os.WriteFile(path, data, 0o644); err != nil {
						return fmt.Errorf("write send log: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
					return nil
				}

				detail, err := a.accounts.Detail(cmd.Context(), task)
				if err != nil {
					return err
				}
				page, err := a.accounts.Logs(cmd.Context(), task, q)
				if err != nil {
					return err
				}
				printTaskDetail(cmd.OutOrStdout(), detail)
				printSendLog(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&q.Page, "page", 1, "page number, starting at 1")
	f.IntVar(&q.RowsPerPage, "rows", models.DefaultLogRows, "rows per page: 20, 50, 100 or 200")
	f.StringVar(&q.SearchText, "search", "", "match recipient or person info")
	f.StringVar(&q.DateFrom, "from", "", "first plan date, YYYY-MM-DD")
	f.StringVar(&q.DateTo, "to", "", "last plan date, YYYY-MM-DD")
	f.StringVar(&q.ResultType, "result", models.ResultAll, "ALL, notyet, send, failed, not_triggered, triggered")
	f.BoolVar(&q.OnlyAccessed, "accessed", false, "only recipients who opened the mail")
	f.BoolVar(&q.OnlyClicked, "clicked", false, "only recipients who clicked a link")
	f.BoolVar(&q.OnlyFiled, "filed", false, "only recipients who opened an attachment")
	f.StringVar(&q.SortBy, "sort-by", models.SortTargetEmail, "target_email, plan_time, send_time or person_info")
	f.BoolVar(&desc, "desc", false, "sort descending")
	f.BoolVar(&csv, "csv", false, "write a CSV export instead of printing")
	f.StringVar(&dir, "dir", "", "CSV output directory (defaults to exports.path)")
	f.StringSliceVar(&selected, "select", nil, "log row uuids to export with --csv")
	return cmd
}
