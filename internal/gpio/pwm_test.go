package gpio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readSysfs(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.TrimSpace(string(b))
}

func TestSysfsPWMLevels(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pwmchip0", "pwm0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := NewSysfsPWM(root, 0, 0, 1*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readSysfs(t, filepath.Join(dir, "period")); got != "1000000" {
		t.Errorf("period: got %s, want 1000000", got)
	}
	if got := readSysfs(t, filepath.Join(dir, "enable")); got != "1" {
		t.Errorf("enable: got %s, want 1", got)
	}

	if err := p.SetLevel(255); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readSysfs(t, filepath.Join(dir, "duty_cycle")); got != "1000000" {
		t.Errorf("duty at 255: got %s", got)
	}

	p.SetLevel(51)
	if got := readSysfs(t, filepath.Join(dir, "duty_cycle")); got != "200000" {
		t.Errorf("duty at 51: got %s, want 200000", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := readSysfs(t, filepath.Join(dir, "enable")); got != "0" {
		t.Errorf("enable after close: got %s, want 0", got)
	}
	if got := readSysfs(t, filepath.Join(root, "pwmchip0", "unexport")); got != "0" {
		t.Errorf("unexport: got %s, want 0", got)
	}
}

func TestSysfsPWMExportsMissingChannel(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pwmchip0"), 0o755); err != nil {
		t.Fatal(err)
	}

	// The kernel would create pwm1 on export; without it the duty write fails.
	_, err := NewSysfsPWM(root, 0, 1, time.Millisecond)
	if err == nil {
		t.Fatal("expected error when the channel directory never appears")
	}
	if got := readSysfs(t, filepath.Join(root, "pwmchip0", "export")); got != "1" {
		t.Errorf("export: got %s, want 1", got)
	}
}

func TestSysfsPWMRejectsZeroPeriod(t *testing.T) {
	if _, err := NewSysfsPWM(t.TempDir(), 0, 0, 0); err == nil {
		t.Error("expected error for zero period")
	}
}
