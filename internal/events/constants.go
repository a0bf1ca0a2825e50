package events

import "time"

const (
	installStatusSubject   = "install.status.%s"
	installStatusWildcard  = "install.status.*"
	installProgressSubject = "install.progress.%s"
	installProgressWild    = "install.progress.*"
	logAppendSubject       = "log.append"
	scheduleRefreshSubject = "schedule.refresh"

	serverStartTimeout = 5 * time.Second
	drainTimeout       = 2 * time.Second
)
