package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"sendwatch/internal/dashboard"
	"sendwatch/internal/models"
	"sendwatch/internal/notify"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"
)

const timeLayout = "2006-01-02 15:04"

func printTasks(w io.Writer, view dashboard.View) {
	changed := make(map[string]struct{}, len(view.Highlighted))
	for _, id := range view.Highlighted {
		changed[id] = struct{}{}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tLABEL\tUUID\tSTATE\tTODAY SENT/PLANNED\tUNSENT\tFAILED\tLAST PLANNED\tEXPIRED")
	for _, r := range view.Rows {
		mark := ""
		if _, ok := changed[r.Task.UUID]; ok {
			mark = "*"
		}
		if r.Stats == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t-\t-\n", mark, r.Task.Label, r.Task.UUID)
			continue
		}
		st := r.Stats
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\t%s\n",
			mark, r.Task.Label, r.Task.UUID, r.State,
			int64(st.TodaySent), int64(st.TodayPlanned), int64(st.TodayUnsent),
			failedCell(r), formatTime(st.AllLatestPlan.Time()), yesNo(r.Expired),
		)
	}
	_ = tw.Flush()

	if view.Pages > 1 {
		fmt.Fprintf(w, "page %d/%d, %d tasks\n", view.Page.Page+1, view.Pages, view.Total)
	}
	if view.Error != "" {
		fmt.Fprintf(w, "last refresh failed: %s\n", view.Error)
	}
}

func failedCell(r tasklist.Row) string {
	s := strconv.FormatInt(r.Failed, 10)
	if r.Stats != nil && r.Stats.Inconsistent() {
		s += "!"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printSummary(w io.Writer, s tasklist.Summary) {
	fmt.Fprintf(w, "today %d of %d: doing %d, not yet %d, done %d, warning %d",
		s.Today, s.Total, s.Doing, s.NotYet, s.Done, s.Warning)
	if s.Inconsistent > 0 {
		fmt.Fprintf(w, ", inconsistent %d", s.Inconsistent)
	}
	fmt.Fprintln(w)
}

func printResult(w io.Writer, res *statsync.Result) {
	if res == nil {
		return
	}
	if res.Kind == models.KindCheckTasks && res.Diff != nil {
		fmt.Fprintln(w, notify.FormatDiff(labels(res.Diff.Added), labels(res.Diff.Removed)))
	} else {
		fmt.Fprintln(w, notify.FormatChanged(res.Changed))
	}
	if res.FailedChunks > 0 {
		fmt.Fprintf(w, "%d of %d chunks failed\n", res.FailedChunks, res.Chunks)
	}
	if res.ReloadErr != nil {
		fmt.Fprintln(w, "task list reload failed, the table may be stale")
	}
}

func labels(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Label)
	}
	return out
}

func printJournal(w io.Writer, sessions []*models.RefreshSession) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tSTATE\tTASKS\tDURATION\tERROR")
	for _, s := range sessions {
		dur := "-"
		if s.FinishedAt != nil {
			dur = s.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.StartedAt.Local().Format(timeLayout), s.Kind, s.State, s.TaskCount, dur, s.Error)
	}
	_ = tw.Flush()
}

func printCustomers(w io.Writer, list []models.Customer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFULL NAME\tTASKS")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.FullName, len(c.TaskUUIDs))
	}
	_ = tw.Flush()
}

func printCustomerTasks(w io.Writer, rows []models.CustomerTask) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tUUID\tPROGRESS\tSENT/PLANNED\tFAILED\tTODAY FAILED\tEND")
	for _, r := range rows {
		sent := "-"
		if r.Stats != nil {
			sent = fmt.Sprintf("%d/%d", int64(r.Stats.TotalSent), int64(r.Stats.TotalPlanned))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Task.Label, r.Task.UUID, r.Progress, sent, r.Failed, r.TodayFailed, formatTime(r.End.Time()))
	}
	_ = tw.Flush()
}

func printTaskDetail(w io.Writer, d *models.TaskDetail) {
	if d == nil || d.Stats == nil {
		fmt.Fprintln(w, "no statistics yet")
		return
	}
	st := d.Stats
	fmt.Fprintf(w, "sent %d of %d, succeeded %d, triggered %d (%.1f%%)\n",
		int64(st.TotalSent), int64(st.TotalPlanned), int64(st.TotalSucceeded), int64(st.TotalTriggered), d.TriggerRate)
}

func printSendLog(w io.Writer, page *models.LogPage) {
	if page == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECIPIENT\tPERSON\tPLANNED\tSENT\tOUTCOME\tDEVICE")
	for _, l := range page.Logs {
		device := l.AccessDevice
		if device == "" {
			device = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.TargetEmail, l.PersonInfo, formatTime(l.PlanTime.Time()), formatTime(l.SendTime.Time()), l.Outcome(), device)
	}
	_ = tw.Flush()

	if page.Rows > 0 {
		pages := (page.Total + page.Rows - 1) / page.Rows
		fmt.Fprintf(w, "page %d/%d, %d rows\n", page.Page, pages, page.Total)
	}
}
