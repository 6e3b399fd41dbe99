package checkpoint

import "fmt"

// ExpansionError is returned when the graph cannot be extended after a
// checkpoint. It is fatal for the aggregation and its dependents only.
type ExpansionError struct {
	Checkpoint string
	Aggregate  string
	Reason     string
	Err        error
}

func (e *ExpansionError) Error() string {
	msg := fmt.Sprintf("expanding checkpoint %s for %s: %s", e.Checkpoint, e.Aggregate, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExpansionError) Unwrap() error { return e.Err }
