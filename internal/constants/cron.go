package constants

const (
	// MaxCronJobs is the fixed size of the job table.
	MaxCronJobs = 32

	// MaxCronExpressionLen is the longest expression a job record can hold.
	MaxCronExpressionLen = 31

	// CronExecWindowSec is how many seconds after the top of a matching
	// minute a job is still considered due.
	CronExecWindowSec = 2

	// DefaultTimezone is used when no location is configured.
	DefaultTimezone = "UTC"
)
