package models

// TodayState is the dashboard classification of a task's progress today.
type TodayState string

const (
	TodayAll     TodayState = "all"
	TodayDoing   TodayState = "doing"
	TodayNotYet  TodayState = "notyet"
	TodayDone    TodayState = "done"
	TodayWarning TodayState = "warning"
)

// ParseTodayState maps a query string value to a state; unknown values map to TodayAll.
func ParseTodayState(s string) TodayState {
	switch TodayState(s) {
	case TodayDoing, TodayNotYet, TodayDone, TodayWarning:
		return TodayState(s)
	default:
		return TodayAll
	}
}

// Per-task status values returned by the bulk statistics refresh.
const (
	StatsChanged   = "changed"
	StatsUnchanged = "unchanged"
)

// StatusSuccess is the envelope discriminator of a successful backend response.
const StatusSuccess = "success"

const (
	// DefaultChunkCount is the number of concurrent chunks a bulk refresh is split into.
	DefaultChunkCount = 3

	// DefaultPageSize rows per dashboard page.
	DefaultPageSize = 5

	// DefaultSessionTTL lifetime of a stored operator session, in seconds.
	DefaultSessionTTL = 24 * 60 * 60
)
