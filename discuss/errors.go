package discuss

import "fmt"

// ExtractionError is returned when a document lacks a field required to build
// a record. Callers skip the item; no partial record is ever returned.
type ExtractionError struct {
	URL   string
	Field string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s from %s: field missing", e.Field, e.URL)
}
