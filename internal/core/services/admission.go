package services

import (
	"fmt"
	"sync/atomic"

	"framerelay/internal/core/domain"
)

// AdmissionController bounds the number of concurrent streams and the
// number of viewers attached to each stream. Rejections are pure decisions:
// nothing is mutated when a request is turned away.
type AdmissionController struct {
	limits domain.Limits
}

func NewAdmissionController(limits domain.Limits) *AdmissionController {
	return &AdmissionController{limits: limits}
}

func (a *AdmissionController) Limits() domain.Limits {
	return a.limits
}

// AdmitStream decides whether one more stream fits next to current active
// streams. The caller must hold the registry write lock so that the check
// and the insert form one step.
func (a *AdmissionController) AdmitStream(current int) error {
	if current >= a.limits.MaxStreams {
		return fmt.Errorf("%w (%d/%d)", domain.ErrMaxStreamsReached, current, a.limits.MaxStreams)
	}
	return nil
}

// ReserveViewer takes one slot on counter, lock free. The counter never
// exceeds MaxViewersPerStream, even transiently, so exactly that many
// concurrent callers succeed regardless of interleaving.
func (a *AdmissionController) ReserveViewer(counter *atomic.Int64) error {
	limit := int64(a.limits.MaxViewersPerStream)
	for {
		current := counter.Load()
		if current >= limit {
			return fmt.Errorf("%w (%d/%d)", domain.ErrMaxViewersReached, current, limit)
		}
		if counter.CompareAndSwap(current, current+1) {
			return nil
		}
	}
}

// ReleaseViewer gives back a slot taken by ReserveViewer.
func (a *AdmissionController) ReleaseViewer(counter *atomic.Int64) {
	counter.Add(-1)
}
