package shared

import (
	"sync/atomic"

	"rtcompress/constants"
)

// Status is the pair of words the host polls while the compressor runs.
type Status struct {
	code   atomic.Uint32
	detail atomic.Uint32
}

// NewStatus starts in StatusRunning.
func NewStatus() *Status {
	s := &Status{}
	s.code.Store(constants.StatusRunning)
	return s
}

// Set publishes the final code; detail is the best search point on success
// and the failing stage otherwise.
func (s *Status) Set(code, detail uint32) {
	s.detail.Store(detail)
	s.code.Store(code)
}

// Code returns the current code.
func (s *Status) Code() uint32 { return s.code.Load() }

// Detail returns the detail word.
func (s *Status) Detail() uint32 { return s.detail.Load() }

// Running reports whether no final code has been published.
func (s *Status) Running() bool { return s.Code() == constants.StatusRunning }

// CodeName renders a status code for logs.
func CodeName(code uint32) string {
	switch code {
	case constants.ExitedCleanly:
		return "EXITED_CLEANLY"
	case constants.ExitFail:
		return "EXIT_FAIL"
	case constants.ExitMalloc:
		return "EXIT_MALLOC"
	case constants.ExitSwErr:
		return "EXIT_SWERR"
	case constants.StatusRunning:
		return "RUNNING"
	}
	return "UNKNOWN"
}
