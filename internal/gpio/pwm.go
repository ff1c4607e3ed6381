package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// SysfsRoot is where the kernel exposes PWM chips.
const SysfsRoot = "/sys/class/pwm"

// SysfsPWM drives the inverter control signal through the kernel sysfs PWM
// interface (dtoverlay=pwm on GPIO18 exposes pwmchip0/pwm0).
type SysfsPWM struct {
	mu      sync.Mutex
	chipDir string
	dir     string
	channel int
	period  time.Duration
}

// NewSysfsPWM exports the channel, programs the period and enables output
// at zero duty.
func NewSysfsPWM(root string, chip, channel int, period time.Duration) (*SysfsPWM, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm: period must be positive, got %v", period)
	}
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	p := &SysfsPWM{
		chipDir: chipDir,
		dir:     filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel)),
		channel: channel,
		period:  period,
	}

	if _, err := os.Stat(p.dir); errors.Is(err, os.ErrNotExist) {
		if err := p.write(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("pwm export: %w", err)
		}
	}
	if err := p.write(filepath.Join(p.dir, "duty_cycle"), "0"); err != nil {
		return nil, fmt.Errorf("pwm duty: %w", err)
	}
	if err := p.write(filepath.Join(p.dir, "period"), strconv.FormatInt(period.Nanoseconds(), 10)); err != nil {
		return nil, fmt.Errorf("pwm period: %w", err)
	}
	if err := p.write(filepath.Join(p.dir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("pwm enable: %w", err)
	}
	return p, nil
}

// SetLevel maps the 8-bit level onto the duty cycle.
func (p *SysfsPWM) SetLevel(level uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	duty := p.period.Nanoseconds() * int64(level) / 255
	if err := p.write(filepath.Join(p.dir, "duty_cycle"), strconv.FormatInt(duty, 10)); err != nil {
		return fmt.Errorf("pwm set level %d: %w", level, err)
	}
	return nil
}

// Close zeroes the duty, disables and unexports the channel.
func (p *SysfsPWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if err := p.write(filepath.Join(p.dir, "duty_cycle"), "0"); err != nil {
		errs = append(errs, err)
	}
	if err := p.write(filepath.Join(p.dir, "enable"), "0"); err != nil {
		errs = append(errs, err)
	}
	if err := p.write(filepath.Join(p.chipDir, "unexport"), strconv.Itoa(p.channel)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *SysfsPWM) write(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
