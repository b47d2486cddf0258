package twinsync

// Hooks into the message handling of ImportJobs for the external tests.
var (
	HandleJob = handleJob
	Settle    = settle
)
