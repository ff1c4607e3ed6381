package input

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/gpio"
)

var (
	// ErrBusy is returned when a selection arrives while a program runs.
	ErrBusy = errors.New("program running")
	// ErrUnknownCommand is returned for a remote command not in the table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotAwaiting is returned by confirm outside the balance wait.
	ErrNotAwaiting = errors.New("not waiting for balance confirmation")
)

// Target is the machine the dispatcher drives.
type Target interface {
	Running() bool
	AwaitingBalance() bool
	Confirm()
	Halt()
}

// Command is an entry of the remote command table.
type Command struct {
	Name string
	Help string
	run  func(d *Dispatcher) error
}

var buttonModes = map[gpio.Button]Mode{
	gpio.ButtonWash:     ModeWash,
	gpio.ButtonRinse:    ModeRinse,
	gpio.ButtonSpin:     ModeSpin,
	gpio.ButtonComplete: ModeComplete,
}

// Dispatcher routes presses and commands. It never blocks; the
// orchestrator does all substantive work.
type Dispatcher struct {
	sel    *Selector
	target Target
	log    *zap.SugaredLogger

	mu  sync.Mutex
	deb *Debouncer

	commands map[string]Command
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sel *Selector, target Target, lockout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{sel: sel, target: target, log: log, deb: NewDebouncer(lockout)}
	d.commands = map[string]Command{
		"wash":     {Name: "wash", Help: "start wash only", run: selectMode(ModeWash)},
		"rinse":    {Name: "rinse", Help: "start rinse only", run: selectMode(ModeRinse)},
		"spin":     {Name: "spin", Help: "start spin only", run: selectMode(ModeSpin)},
		"complete": {Name: "complete", Help: "start the complete program", run: selectMode(ModeComplete)},
		"soak":     {Name: "soak", Help: "start soak", run: selectMode(ModeSoak)},
		"halt":     {Name: "halt", Help: "stop the running program", run: func(d *Dispatcher) error { d.halt(); return nil }},
		"confirm":  {Name: "confirm", Help: "confirm the load is balanced", run: (*Dispatcher).confirm},
	}
	return d
}

func selectMode(m Mode) func(d *Dispatcher) error {
	return func(d *Dispatcher) error { return d.Select(m) }
}

// Select requests program m. It is rejected, not queued, while a program
// runs.
func (d *Dispatcher) Select(m Mode) error {
	if d.target.Running() {
		return fmt.Errorf("select %s: %w", m, ErrBusy)
	}
	d.sel.Set(m)
	d.log.Infow("mode selected", "mode", m)
	return nil
}

// Press handles a button edge. The halt button confirms the balance wait
// when one is pending and halts otherwise.
func (d *Dispatcher) Press(e gpio.Edge) {
	d.mu.Lock()
	ok := d.deb.Accept(e)
	d.mu.Unlock()
	if !ok {
		return
	}

	if e.Button == gpio.ButtonHalt {
		if d.target.AwaitingBalance() {
			d.log.Infow("halt button confirms balance")
			d.target.Confirm()
			return
		}
		d.halt()
		return
	}
	m, ok := buttonModes[e.Button]
	if !ok {
		d.log.Warnw("press from unmapped button", "button", e.Button)
		return
	}
	if err := d.Select(m); err != nil {
		d.log.Debugw("press ignored", "button", e.Button, "err", err)
	}
}

// Execute runs a remote command by name.
func (d *Dispatcher) Execute(name string) error {
	cmd, ok := d.commands[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return cmd.run(d)
}

// Commands lists the command table sorted by name.
func (d *Dispatcher) Commands() []Command {
	out := make([]Command, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Presses returns accepted presses per button.
func (d *Dispatcher) Presses() map[gpio.Button]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deb.Counts()
}

func (d *Dispatcher) halt() {
	d.log.Infow("halt requested")
	d.target.Halt()
}

func (d *Dispatcher) confirm() error {
	if !d.target.AwaitingBalance() {
		return ErrNotAwaiting
	}
	d.target.Confirm()
	return nil
}
