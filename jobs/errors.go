package jobs

import "fmt"

type ContinuationLimitError struct {
	Limit int
}

func (e ContinuationLimitError) Error() string {
	return fmt.Sprintf("job already has the maximum of %d continuations", e.Limit)
}
