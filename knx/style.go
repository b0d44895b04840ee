package knx

import "sync/atomic"

// GroupStyle selects how GroupAddr values are rendered and parsed as text.
type GroupStyle int32

const (
	// ThreeLevel renders "main/middle/sub" (5/3/8 bits). This is the style
	// ETS uses by default and the one assumed when no style has been set.
	ThreeLevel GroupStyle = iota

	// TwoLevel renders "main/sub" (5/11 bits), sometimes called "free" style.
	TwoLevel
)

// groupStyle is process-wide: §4.1 requires it be "selected per process
// before any decode that prints group addresses". An atomic int32 lets
// readers (String, ParseGroupAddr) avoid a lock on the hot path while still
// observing a SetGroupStyle call from another goroutine at startup.
var groupStyle atomic.Int32

// SetGroupStyle selects the process-wide group address formatting style.
// Call it once at startup, before parsing or formatting any group address;
// changing it afterwards is safe but will change how addresses already held
// by callers print and parse from then on.
func SetGroupStyle(style GroupStyle) {
	groupStyle.Store(int32(style))
}

// CurrentGroupStyle returns the style most recently set by SetGroupStyle,
// defaulting to ThreeLevel.
func CurrentGroupStyle() GroupStyle {
	return GroupStyle(groupStyle.Load())
}
