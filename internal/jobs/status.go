package jobs

import (
	"fmt"
	"strings"

	"pkt.systems/zowe/schema"
)

// StatusOrder lists the recognized job states in lifecycle order.
var StatusOrder = []schema.JobStatus{
	schema.JobStatusInput,
	schema.JobStatusActive,
	schema.JobStatusOutput,
}

// Order returns the position of status in StatusOrder.
func Order(status schema.JobStatus) (int, bool) {
	normalized := schema.JobStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	for i, candidate := range StatusOrder {
		if candidate == normalized {
			return i, true
		}
	}
	return -1, false
}

// Reached reports whether current is at or beyond target. Unknown states never reach anything.
func Reached(current, target schema.JobStatus) bool {
	c, ok := Order(current)
	if !ok {
		return false
	}
	t, ok := Order(target)
	if !ok {
		return false
	}
	return c >= t
}

// ParseStatus validates a user supplied status name.
func ParseStatus(value string) (schema.JobStatus, error) {
	idx, ok := Order(schema.JobStatus(value))
	if !ok {
		return "", fmt.Errorf("%w: status %q must be one of INPUT, ACTIVE, OUTPUT", ErrInvalidWaitOptions, value)
	}
	return StatusOrder[idx], nil
}
