package video

import "github.com/video-system/vrw/pkg/index"

// selection is the frame-axis part of a plan resolved to source frames.
// frames is the order in which frames fill the output before reverse is
// applied.
type selection struct {
	frames   []int
	collapse bool
	reverse  bool
}

// selectFrames resolves the frame-axis selector. Negative-step ranges are
// turned into the same frames in ascending order and flagged for reversal,
// since the decoder only moves forward.
func selectFrames(sel index.Selector) selection {
	switch sel.Kind {
	case index.KindSingle:
		return selection{frames: []int{sel.Index}, collapse: true}
	case index.KindRange:
		if sel.Step < 0 && sel.Len() > 0 {
			n := sel.Len()
			last := sel.Start + (n-1)*sel.Step
			frames := make([]int, n)
			for i := range frames {
				frames[i] = last - i*sel.Step
			}
			return selection{frames: frames, reverse: true}
		}
	}
	return selection{frames: sel.Positions()}
}
