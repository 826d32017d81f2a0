package video

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/pkg/array"
)

// DecodeOrder selects how a multi-frame request is fetched from the decoder
type DecodeOrder int

const (
	// OrderSorted decodes the unique requested frames in ascending order in
	// a single forward pass and redistributes them to the requested
	// positions. At most one rewind happens per request.
	OrderSorted DecodeOrder = iota

	// OrderRequested decodes frames in the order they were requested.
	// Consecutive duplicates are served from the single-frame cache; any
	// backward step rewinds the decoder.
	OrderRequested
)

func (o DecodeOrder) String() string {
	if o == OrderRequested {
		return "requested"
	}
	return "sorted"
}

// ParseDecodeOrder parses "sorted" or "requested". Empty means sorted.
func ParseDecodeOrder(s string) (DecodeOrder, error) {
	switch s {
	case "", "sorted":
		return OrderSorted, nil
	case "requested":
		return OrderRequested, nil
	}
	return 0, fmt.Errorf("unknown decode order %q (want sorted or requested)", s)
}

// Stats counts decoder activity on one reader
type Stats struct {
	Decoded   int `json:"decoded"`    // frames decoded and kept
	Skipped   int `json:"skipped"`    // frames decoded and discarded while seeking
	Rewinds   int `json:"rewinds"`    // restarts at frame 0
	CacheHits int `json:"cache_hits"` // requests served from the cache
}

// cursor maps random frame requests onto a forward-only decoder. pos is the
// index of the frame the next NextFrame call yields; it only moves backward
// through rewind.
type cursor struct {
	dec     Decoder
	backend string
	pos     int

	cached   *array.Array
	cachedAt int

	stats Stats
}

func newCursor(dec Decoder, backend string) *cursor {
	return &cursor{dec: dec, backend: backend, cachedAt: -1}
}

// frame returns source frame i, decoding forward or rewinding as needed
func (c *cursor) frame(i int) (*array.Array, error) {
	if c.cached != nil && c.cachedAt == i {
		c.hit()
		return c.cached, nil
	}

	if i < c.pos {
		if err := c.rewind(); err != nil {
			return nil, err
		}
	}
	for c.pos < i {
		if err := c.skip(); err != nil {
			return nil, c.decodeError(i, err)
		}
	}

	f, err := c.dec.NextFrame()
	if err != nil {
		return nil, c.decodeError(i, err)
	}
	c.pos++
	c.stats.Decoded++
	framesDecoded.WithLabelValues(c.backend).Inc()

	c.cached, c.cachedAt = f, i
	return f, nil
}

func (c *cursor) hit() {
	c.stats.CacheHits++
	cacheHits.WithLabelValues(c.backend).Inc()
}

// skip advances past one frame without keeping it. Decoder errors,
// including io.EOF, are returned unwrapped.
func (c *cursor) skip() error {
	var err error
	if s, ok := c.dec.(Skipper); ok {
		err = s.SkipFrame()
	} else {
		_, err = c.dec.NextFrame()
	}
	if err != nil {
		return err
	}
	c.pos++
	c.stats.Skipped++
	framesSkipped.WithLabelValues(c.backend).Inc()
	return nil
}

func (c *cursor) decodeError(want int, err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: stream ended after %d frames, before frame %d", ErrDecode, c.pos, want)
	}
	return fmt.Errorf("%w: frame %d: %v", ErrDecode, c.pos, err)
}

func (c *cursor) rewind() error {
	logrus.WithFields(logrus.Fields{
		"function": "cursor.rewind",
		"backend":  c.backend,
		"from":     c.pos,
	}).Debug("Rewinding decoder")

	if err := c.dec.Rewind(); err != nil {
		return fmt.Errorf("%w: rewind: %v", ErrDecode, err)
	}
	c.pos = 0
	c.stats.Rewinds++
	rewinds.WithLabelValues(c.backend).Inc()
	return nil
}

// count decodes the rest of the stream and returns the total number of
// frames. The cursor is left at the end; the next request rewinds.
func (c *cursor) count() (int, error) {
	for {
		err := c.skip()
		if errors.Is(err, io.EOF) {
			return c.pos, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: counting frames at %d: %v", ErrDecode, c.pos, err)
		}
	}
}

// collect fetches frames in the given order, transforms each distinct
// frame once with fn, and returns the results in the requested order
func (c *cursor) collect(frames []int, order DecodeOrder, fn func(*array.Array) (*array.Array, error)) ([]*array.Array, error) {
	out := make([]*array.Array, len(frames))

	if order == OrderRequested {
		for k, i := range frames {
			if k > 0 && frames[k-1] == i {
				// Still cached; reuse the transformed frame too
				c.hit()
				out[k] = out[k-1]
				continue
			}
			f, err := c.frame(i)
			if err != nil {
				return nil, err
			}
			if out[k], err = fn(f); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	unique := make([]int, 0, len(frames))
	seen := make(map[int]bool, len(frames))
	for _, i := range frames {
		if !seen[i] {
			seen[i] = true
			unique = append(unique, i)
		}
	}
	sort.Ints(unique)

	done := make(map[int]*array.Array, len(unique))
	for _, i := range unique {
		f, err := c.frame(i)
		if err != nil {
			return nil, err
		}
		if done[i], err = fn(f); err != nil {
			return nil, err
		}
	}
	for k, i := range frames {
		out[k] = done[i]
	}
	return out, nil
}
