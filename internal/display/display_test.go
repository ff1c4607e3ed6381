package display

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintAtCursor(t *testing.T) {
	b := New(16, 2)
	b.SetCursor(1, 0)
	b.Print("Washing")
	b.SetCursor(8, 1)
	b.Print("18.5")
	b.SetCursor(13, 1)
	b.Print("L")

	assert.Equal(t, []string{" Washing", "        18.5 L"}, b.Lines())
}

func TestPrintClipsAtRowEnd(t *testing.T) {
	b := New(16, 2)
	b.SetCursor(10, 0)
	b.Print("0123456789")
	assert.Equal(t, "          012345", b.Lines()[0])
	assert.Equal(t, "", b.Lines()[1], "overflow must not wrap to the next row")
}

func TestPrintOverwritesInPlace(t *testing.T) {
	b := New(16, 2)
	b.SetCursor(8, 1)
	b.Print("12.3")
	b.SetCursor(8, 1)
	b.Print(" 4.0")
	assert.Equal(t, "         4.0", b.Lines()[1])
}

func TestClearHomesCursor(t *testing.T) {
	b := New(16, 2)
	b.SetCursor(5, 1)
	b.Print("x")
	b.Clear()
	b.Print("Soak")
	assert.Equal(t, []string{"Soak", ""}, b.Lines())
}

func TestSetCursorClamps(t *testing.T) {
	b := New(16, 2)
	b.SetCursor(-3, 9)
	b.Print("A")
	assert.Equal(t, "A", b.Lines()[1])

	b.SetCursor(40, 0)
	b.Print("B")
	assert.Equal(t, "", b.Lines()[0])
}

func TestNonPrintable(t *testing.T) {
	b := New(16, 2)
	b.Print("a\tb")
	assert.Equal(t, "a?b", b.Lines()[0])
}

func TestDefaultsAndSize(t *testing.T) {
	cols, rows := New(0, 0).Size()
	assert.Equal(t, 16, cols)
	assert.Equal(t, 2, rows)

	cols, rows = New(20, 4).Size()
	assert.Equal(t, 20, cols)
	assert.Equal(t, 4, rows)
}

func TestGenerationAdvances(t *testing.T) {
	b := New(16, 2)
	g0 := b.Generation()
	b.Print("x")
	assert.Greater(t, b.Generation(), g0)
	g1 := b.Generation()
	b.SetCursor(0, 1)
	assert.Equal(t, g1, b.Generation(), "moving the cursor is not a write")
}

func TestSplash(t *testing.T) {
	b := New(16, 2)
	Splash(b)
	assert.Equal(t, []string{" IntelliVerter", "Washing Machine"}, b.Lines())
}

func TestRender(t *testing.T) {
	out := Render([]string{"Spin", ""}, 6)
	want := strings.Join([]string{
		"+------+",
		"|Spin  |",
		"|      |",
		"+------+",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestConcurrentWriters(t *testing.T) {
	b := New(16, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.SetCursor(0, 0)
				b.Print("busy")
				_ = b.Lines()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "busy", b.Lines()[0])
}
