package ingest

import "fmt"

// PublishError is a failed attempt to publish a pending post. The post stays
// pending and is retried on the next cycle.
type PublishError struct {
	Key string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %s: %s", e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
