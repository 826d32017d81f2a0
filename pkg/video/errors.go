package video

import (
	"errors"

	"github.com/video-system/vrw/pkg/index"
)

var (
	// ErrIndex is returned for malformed or out-of-range index expressions.
	ErrIndex = index.ErrIndex

	// ErrDecode is returned when the decoder fails or ends before a
	// requested frame.
	ErrDecode = errors.New("decode error")

	// ErrShape is returned when a written frame's shape differs from the
	// shape locked by the first frame.
	ErrShape = errors.New("shape mismatch")

	// ErrType is returned when a written frame's element type differs from
	// the type locked by the first frame.
	ErrType = errors.New("dtype mismatch")

	// ErrState is returned for operations on a closed reader or writer.
	ErrState = errors.New("closed")

	// ErrConfig is returned for reader or writer settings that cannot work,
	// such as a non-positive frame rate.
	ErrConfig = errors.New("invalid configuration")

	// ErrBackend is returned for unknown backends or backend open failures.
	ErrBackend = errors.New("backend error")
)
