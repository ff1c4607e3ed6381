package level

import (
	"errors"
	"sync"
)

// FakeSource is a test double that returns scripted raw readings.
type FakeSource struct {
	mu sync.Mutex

	// Values contains scripted raw readings. Each call to ReadRaw consumes
	// the next value; when exhausted the last value repeats.
	Values []float64

	// Fail marks call indices that return ErrNotReady.
	Fail map[int]bool

	// ReadError, if set, will be returned by every ReadRaw.
	ReadError error

	index int
	calls int
}

// NewFakeSource creates a FakeSource with the given readings.
func NewFakeSource(values ...float64) *FakeSource {
	return &FakeSource{Values: values}
}

// ReadRaw returns the next scripted reading.
func (f *FakeSource) ReadRaw() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if f.Fail[call] {
		return 0, ErrNotReady
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script and rewinds it.
func (f *FakeSource) Set(values ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Values = values
	f.index = 0
}

// Calls returns how many times ReadRaw was called.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Remaining reports how many scripted values have not been consumed yet.
func (f *FakeSource) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return 0
	}
	return len(f.Values) - 1 - f.index
}
