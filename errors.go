package pathsampling

import "fmt"

// A ConfigError reports an invalid configuration value. It is returned before
// any sampling begins.
type ConfigError struct {
	Field  string // name of the offending configuration value
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pathsampling: invalid configuration: %s: %s", e.Field, e.Reason)
}

// A ScheduleRangeError reports a request for the coefficient of a step beyond
// the end of the path.
type ScheduleRangeError struct {
	Step       int
	TotalSteps int
}

func (e *ScheduleRangeError) Error() string {
	return fmt.Sprintf("pathsampling: step %d is out of range [0, %d]", e.Step, e.TotalSteps)
}

// A MergeInvariantViolation reports that a node scheduled for replacement
// during a graph merge is not referenced by one of its declared consumers. The
// graphs' bookkeeping is inconsistent; the merge is aborted and must not be
// retried.
type MergeInvariantViolation struct {
	ID       string // identifier of the node being replaced
	Consumer string // identifier of the consumer that does not reference it
}

func (e *MergeInvariantViolation) Error() string {
	return fmt.Sprintf("pathsampling: merge invariant violated: could not find node %q among the inputs of its consumer %q", e.ID, e.Consumer)
}

// A DegenerateInputError reports a trace that holds no samples after its
// burn-in has been discarded.
type DegenerateInputError struct {
	Step   int
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("pathsampling: degenerate input at step %d: %s", e.Step, e.Reason)
}
