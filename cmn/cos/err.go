// Package cos provides common low-level types used across this module: a
// small typed error taxonomy for the receive/decode path, an error
// accumulator, and the wire checksum seed.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

type (
	// ErrMalformedPacket: decode yielded an out-of-range id, a truncated
	// slot, or an unknown type tag. Dropped, non-fatal, counted.
	ErrMalformedPacket struct {
		reason string
	}
	// ErrCapacityExceeded: a bounded swarmlist would overflow. Dropped,
	// non-fatal, counted.
	ErrCapacityExceeded struct {
		max int
	}
	// ErrInvariantViolated: the id->position map disagrees with the
	// entry sequence, or num_active drifted. Must never be produced by a
	// correct update/tick/remove path; callers should treat this as fatal.
	ErrInvariantViolated struct {
		what string
	}

	// Errs accumulates up to maxErrs distinct errors without allocating
	// per-occurrence; used by the receive path to batch-report the
	// per-slot Swarmlist.Update errors of one packet, and by Transmit
	// for send errors.
	Errs struct {
		mu   sync.Mutex
		errs []error
	}
)

const maxErrs = 4

// ChecksumSeed seeds the transport package's whole-frame xxhash64 checksum,
// the same way aistore's own uuid.go seeds its digest with MLCG32.
const ChecksumSeed = 0x2f5c3a9d

func NewErrMalformedPacket(format string, a ...any) *ErrMalformedPacket {
	return &ErrMalformedPacket{reason: fmt.Sprintf(format, a...)}
}

func (e *ErrMalformedPacket) Error() string { return "malformed packet: " + e.reason }

func NewErrCapacityExceeded(max int) *ErrCapacityExceeded {
	return &ErrCapacityExceeded{max: max}
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("swarmlist capacity exceeded (max %d entries)", e.max)
}

func IsErrCapacityExceeded(err error) bool {
	_, ok := err.(*ErrCapacityExceeded)
	return ok
}

func NewErrInvariantViolated(format string, a ...any) *ErrInvariantViolated {
	return &ErrInvariantViolated{what: fmt.Sprintf(format, a...)}
}

func (e *ErrInvariantViolated) Error() string { return "invariant violated: " + e.what }

// Add records err, deduplicating by message, up to maxErrs; beyond that
// the error is silently dropped and not counted, since these are
// non-fatal bookkeeping errors.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

// JoinErr returns the number of distinct errors recorded (at most maxErrs)
// and a single wrapped error (nil if nothing was recorded).
func (e *Errs) JoinErr() (cnt int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cnt = len(e.errs)
	if cnt == 0 {
		return 0, nil
	}
	err = errors.Errorf("%d error(s), first: %v", cnt, e.errs[0])
	return
}
