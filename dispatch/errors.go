package dispatch

import "fmt"

// ActionError is a failure of one side effect (reblog, favorite, a reply)
// while handling an event. Other actions for the same event still run.
type ActionError struct {
	Action  string
	EventID string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("event %s: %s: %s", e.EventID, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
