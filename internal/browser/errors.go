package browser

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for element lookups. Staleness and absence are expected
// states in a live page, not faults; callers branch on them with errors.Is.
var (
	ErrStale    = errors.New("element is stale or detached from the document")
	ErrNotFound = errors.New("element not found")
)

// staleMarkers are the devtools protocol failure texts that mean the node
// handle outlived the DOM it was resolved against.
var staleMarkers = []string{
	"could not find node",
	"no node with given id",
	"node with given id does not belong",
	"not attached to the document",
	"detached from the document",
	"no object with given id",
	"cannot find context with specified id",
	"object couldn't be returned by evaluate",
}

// IsStale reports whether err describes a stale or detached node.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStale) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is a lookup that simply ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
