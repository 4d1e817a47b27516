package metrics

const (
	targetLabel    = "target"
	statusLabel    = "status"
	isTimeoutLabel = "is_timeout"

	statusSuccess = "success"
	statusFailure = "failure"
)

// LatencyBuckets span 1ms to 10s. Observations above the last bound land in the implicit +Inf bucket.
var LatencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
