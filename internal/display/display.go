// Package display holds the character display the controller writes to.
// The Buffer is a virtual 16x2 (or 20x4) LCD; the web page, the status
// JSON and the state command read it back.
package display

import (
	"strings"
	"sync"
)

// Buffer is a fixed-size character framebuffer with HD44780 semantics:
// a cursor, clear, and print that clips at the end of the row.
type Buffer struct {
	mu       sync.RWMutex
	cols     int
	rows     [][]byte
	col, row int
	gen      uint64
}

// New creates a cleared cols x rows buffer.
func New(cols, rows int) *Buffer {
	if cols <= 0 {
		cols = 16
	}
	if rows <= 0 {
		rows = 2
	}
	b := &Buffer{cols: cols, rows: make([][]byte, rows)}
	for i := range b.rows {
		b.rows[i] = make([]byte, cols)
	}
	b.clear()
	return b
}

// Size returns the columns and rows.
func (b *Buffer) Size() (cols, rows int) {
	return b.cols, len(b.rows)
}

// Clear blanks the screen and homes the cursor.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.clear()
	b.gen++
	b.mu.Unlock()
}

func (b *Buffer) clear() {
	for _, r := range b.rows {
		for i := range r {
			r[i] = ' '
		}
	}
	b.col, b.row = 0, 0
}

// SetCursor moves the cursor. Out of range positions are clamped.
func (b *Buffer) SetCursor(col, row int) {
	b.mu.Lock()
	b.col = clamp(col, 0, b.cols)
	b.row = clamp(row, 0, len(b.rows)-1)
	b.mu.Unlock()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Print writes s at the cursor and advances it. Text past the last column
// is dropped; non-printable bytes render as '?'.
func (b *Buffer) Print(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.rows[b.row]
	for i := 0; i < len(s) && b.col < b.cols; i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e {
			c = '?'
		}
		r[b.col] = c
		b.col++
	}
	b.gen++
}

// Lines returns the rows with trailing blanks removed.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.rows))
	for i, r := range b.rows {
		out[i] = strings.TrimRight(string(r), " ")
	}
	return out
}

// Generation increments on every write, so pollers can skip unchanged frames.
func (b *Buffer) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gen
}

// Render draws lines inside a box sized for cols columns, for terminals.
func Render(lines []string, cols int) string {
	var sb strings.Builder
	edge := "+" + strings.Repeat("-", cols) + "+\n"
	sb.WriteString(edge)
	for _, l := range lines {
		if len(l) > cols {
			l = l[:cols]
		}
		sb.WriteString("|" + l + strings.Repeat(" ", cols-len(l)) + "|\n")
	}
	sb.WriteString(edge)
	return sb.String()
}

// Splash shows the boot screen.
func Splash(b *Buffer) {
	b.Clear()
	b.SetCursor(0, 0)
	b.Print(" IntelliVerter ")
	b.SetCursor(0, 1)
	b.Print("Washing Machine")
}
