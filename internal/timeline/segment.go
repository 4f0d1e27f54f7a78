package timeline

import (
	"fmt"
	"math"
	"time"
)

// Segment is a time-bounded span of original speech with its translated text
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"translated_text"`
}

// Duration returns End - Start in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// OverlapError reports a segment that starts before the previous one ended
type OverlapError struct {
	Index       int
	Start       float64
	PreviousEnd float64
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("segment %d starts at %.3fs before previous segment ends at %.3fs",
		e.Index, e.Start, e.PreviousEnd)
}

// MalformedSegmentError reports a segment whose own bounds are unusable
type MalformedSegmentError struct {
	Index  int
	Reason string
}

func (e *MalformedSegmentError) Error() string {
	return fmt.Sprintf("segment %d is malformed: %s", e.Index, e.Reason)
}

// slot is the planned placement of one segment on the track
type slot struct {
	silence time.Duration
	target  time.Duration
}

// plan validates every segment and computes gap silence and clip targets in
// whole milliseconds from absolute boundaries, so the track ends exactly at
// the last segment's end. Gaps at or under gapThreshold are absorbed into the
// following clip.
func plan(segments []Segment, gapThreshold time.Duration) ([]slot, time.Duration, error) {
	slots := make([]slot, len(segments))
	thresholdMS := gapThreshold.Milliseconds()
	var cursorMS int64

	for i, seg := range segments {
		if err := checkBounds(i, seg); err != nil {
			return nil, 0, err
		}
		startMS := toMS(seg.Start)
		endMS := toMS(seg.End)

		gapMS := startMS - cursorMS
		if gapMS < 0 {
			return nil, 0, &OverlapError{Index: i, Start: seg.Start, PreviousEnd: float64(cursorMS) / 1000}
		}

		if gapMS > thresholdMS {
			slots[i] = slot{
				silence: time.Duration(gapMS) * time.Millisecond,
				target:  time.Duration(endMS-startMS) * time.Millisecond,
			}
		} else {
			slots[i] = slot{target: time.Duration(endMS-cursorMS) * time.Millisecond}
		}
		cursorMS = endMS
	}

	return slots, time.Duration(cursorMS) * time.Millisecond, nil
}

// Validate applies the same ordering and bounds rules as Assemble without
// synthesizing anything
func Validate(segments []Segment, gapThreshold time.Duration) error {
	_, _, err := plan(segments, gapThreshold)
	return err
}

func checkBounds(i int, seg Segment) error {
	switch {
	case math.IsNaN(seg.Start) || math.IsNaN(seg.End):
		return &MalformedSegmentError{Index: i, Reason: "NaN boundary"}
	case math.IsInf(seg.Start, 0) || math.IsInf(seg.End, 0):
		return &MalformedSegmentError{Index: i, Reason: "infinite boundary"}
	case seg.Start < 0:
		return &MalformedSegmentError{Index: i, Reason: fmt.Sprintf("negative start %.3f", seg.Start)}
	case seg.End < seg.Start:
		return &MalformedSegmentError{Index: i, Reason: fmt.Sprintf("end %.3f before start %.3f", seg.End, seg.Start)}
	}
	return nil
}

func toMS(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}
