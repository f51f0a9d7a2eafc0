package script

import (
	"sort"
	"time"
)

// DefaultWindowMs is the polling tolerance used by DueCommands.
const DefaultWindowMs = 25

// Line is one timestamped script line. Blank lines carry no commands and
// mark an explicit silence cue.
type Line struct {
	TimeMs   uint64
	Commands []Command
	IsBlank  bool
	// Source is the 1-based line number in the script text.
	Source int
}

// Script is an immutable, time-ordered list of lines.
type Script struct {
	lines    []Line
	duration uint64

	// Header is the header/version line, if any.
	Header string
	// Legacy is set when the header carried the legacy marker and the
	// historical address table was applied.
	Legacy bool
	// Issues collects every non-fatal problem found while parsing.
	Issues []*ParseError
}

func newScript(lines []Line) *Script {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].TimeMs < lines[j].TimeMs })

	s := &Script{lines: lines}
	if n := len(lines); n > 0 {
		s.duration = lines[n-1].TimeMs
	}
	return s
}

// Len returns the number of kept lines.
func (s *Script) Len() int {
	return len(s.lines)
}

// Line returns line i. It panics when i is out of range, like a slice.
func (s *Script) Line(i int) Line {
	return s.lines[i]
}

// Lines returns a copy of all lines.
func (s *Script) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// TotalDurationMs is the timestamp of the last line.
func (s *Script) TotalDurationMs() uint64 {
	return s.duration
}

func (s *Script) TotalDuration() time.Duration {
	return time.Duration(s.duration) * time.Millisecond
}

// Due returns the lines whose time lies within nowMs ± windowMs, in
// script order. It keeps no state; repeated calls return the same lines.
func (s *Script) Due(nowMs, windowMs uint64) []Line {
	lo := uint64(0)
	if nowMs > windowMs {
		lo = nowMs - windowMs
	}
	hi := nowMs + windowMs

	start := sort.Search(len(s.lines), func(i int) bool { return s.lines[i].TimeMs >= lo })
	end := start
	for end < len(s.lines) && s.lines[end].TimeMs <= hi {
		end++
	}
	if start == end {
		return nil
	}
	out := make([]Line, end-start)
	copy(out, s.lines[start:end])
	return out
}

// DueCommands flattens the commands of every line due at nowMs using the
// default window.
func (s *Script) DueCommands(nowMs uint64) []Command {
	var cmds []Command
	for _, line := range s.Due(nowMs, DefaultWindowMs) {
		cmds = append(cmds, line.Commands...)
	}
	return cmds
}
