package gpio

import "sync"

// Write records a single Set call.
type Write struct {
	Line Line
	On   bool
}

// FakeLines is a test double that records output writes.
type FakeLines struct {
	mu sync.Mutex

	state map[Line]bool

	// Writes contains every Set call in order.
	Writes []Write

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeLines creates a FakeLines with every line off.
func NewFakeLines() *FakeLines {
	return &FakeLines{state: make(map[Line]bool)}
}

// Set records the write and updates the line state.
func (f *FakeLines) Set(line Line, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.state[line] = on
	f.Writes = append(f.Writes, Write{Line: line, On: on})
	return nil
}

// Get returns the last written state of line.
func (f *FakeLines) Get(line Line) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[line]
}

// WritesTo returns the recorded writes for a single line.
func (f *FakeLines) WritesTo(line Line) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.Writes {
		if w.Line == line {
			out = append(out, w.On)
		}
	}
	return out
}

// Close marks the lines as closed and de-energises them.
func (f *FakeLines) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for l := range f.state {
		f.state[l] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes and state.
func (f *FakeLines) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = make(map[Line]bool)
	f.Writes = nil
	f.SetError = nil
	f.Closed = false
}

// FakeDriver records drive levels.
type FakeDriver struct {
	mu sync.Mutex

	// Levels contains every SetLevel call in order.
	Levels []uint8

	// SetError, if set, will be returned by SetLevel.
	SetError error

	Closed bool
}

// NewFakeDriver creates a FakeDriver at level zero.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// SetLevel records the level.
func (f *FakeDriver) SetLevel(level uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, level)
	return nil
}

// Level returns the last level written, or zero.
func (f *FakeDriver) Level() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Levels) == 0 {
		return 0
	}
	return f.Levels[len(f.Levels)-1]
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Levels = append(f.Levels, 0)
	f.Closed = true
	return nil
}
