package engine

import "fmt"

// panicError turns a recovered panic value into an error, so a panicking
// validator or policy is contained exactly like one returning a plain
// error (§4.1: "exceptions from validators, policies ... are caught").
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("recovered panic: %w", err)
	}
	return fmt.Errorf("recovered panic: %v", r)
}
