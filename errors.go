package shelfcache

import (
	"errors"
	"fmt"
)

var (
	ErrNilProvider = errors.New("shelfcache: provider is required")
	ErrNilStore    = errors.New("shelfcache: store is required")
)

// OpError is a failed provider call. The cache treats it as a miss on reads
// and reports it to the caller on writes.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("shelfcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// QuotaError describes a failed quota enforcement step. It is logged and
// passed to Hooks.QuotaEnforceError, never returned from Set.
type QuotaError struct {
	Namespace string
	Stage     string // "enumerate" or "evict"
	Err       error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("shelfcache: quota %s for namespace %q: %v", e.Stage, e.Namespace, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }
