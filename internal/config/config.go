// Package config loads the daemon configuration: built-in defaults, then a
// YAML file, then environment variables (optionally from .env files).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atharvap8/intelliverter/internal/actuator"
	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/gpio"
	"github.com/atharvap8/intelliverter/internal/level"
	"github.com/atharvap8/intelliverter/internal/program"
)

// DefaultEnvFiles are loaded by LoadEnv when no files are given. Missing
// files are skipped.
var DefaultEnvFiles = []string{".env", "/run/pi-helper.env"}

// Env var names read by ApplyEnv.
const (
	EnvBroker   = "MQTT_BROKER"
	EnvUsername = "MQTT_USERNAME"
	EnvPassword = "MQTT_PASSWORD"
	EnvLogLevel = "LOG_LEVEL"
	EnvHTTP     = "HTTP_ADDR"
)

// Config is the full daemon configuration.
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Hardware  Hardware  `yaml:"hardware"`
	Sensor    Sensor    `yaml:"sensor"`
	Levels    Levels    `yaml:"levels"`
	Timeouts  Timeouts  `yaml:"timeouts"`
	Timing    Timing    `yaml:"timing"`
	Interlock Interlock `yaml:"interlock"`
	Pins      Pins      `yaml:"pins"`
	Wiring    Wiring    `yaml:"wiring"`
	PWM       PWM       `yaml:"pwm"`
	Display   Display   `yaml:"display"`
	MQTT      MQTT      `yaml:"mqtt"`
	HTTP      HTTP      `yaml:"http"`
}

// Hardware selects the backends.
type Hardware struct {
	// Fake runs against in-memory GPIO and a simulated tub.
	Fake bool   `yaml:"fake"`
	Chip string `yaml:"chip"`
}

// Sensor is the HX711 load-cell amplifier and its calibration.
type Sensor struct {
	Multiplier  float64       `yaml:"multiplier"`
	Offset      float64       `yaml:"offset"`
	Scale       float64       `yaml:"scale"`
	Simulation  bool          `yaml:"simulation"`
	Samples     int           `yaml:"samples"`
	SampleDelay time.Duration `yaml:"sample_delay"`
	DataPin     int           `yaml:"data"`
	ClockPin    int           `yaml:"clock"`
}

// EffectiveScale is the HX711 scale actually used: 1 in simulation.
func (s Sensor) EffectiveScale() float64 {
	if s.Simulation {
		return 1
	}
	return s.Scale
}

// Levels are the water thresholds in liters.
type Levels struct {
	FillTarget    float64 `yaml:"fill_target"`
	AdjustMargin  float64 `yaml:"adjust_margin"`
	DrainComplete float64 `yaml:"drain_complete"`
}

// Timeouts bound the sensor-driven waits.
type Timeouts struct {
	Fill  time.Duration `yaml:"fill"`
	Drain time.Duration `yaml:"drain"`
	Poll  time.Duration `yaml:"poll"`
}

// Agitation is one agitation profile.
type Agitation struct {
	Duration    time.Duration `yaml:"duration"`
	Iterations  int           `yaml:"iterations"`
	Drive       time.Duration `yaml:"drive"`
	Rest        time.Duration `yaml:"rest"`
	Hold        time.Duration `yaml:"hold"`
	ReverseHold time.Duration `yaml:"reverse_hold"`
	Level       int           `yaml:"level"`
}

// Spin is the spin stage timing.
type Spin struct {
	Settle      time.Duration `yaml:"settle"`
	PostDrain   time.Duration `yaml:"post_drain"`
	PreSpin     time.Duration `yaml:"pre_spin"`
	SpinUp      time.Duration `yaml:"spin_up"`
	SpinLevel   int           `yaml:"spin_level"`
	Coast       time.Duration `yaml:"coast"`
	Brake       time.Duration `yaml:"brake"`
	BrakeOnHalt bool          `yaml:"brake_on_halt"`
}

// Timing holds every phase timing.
type Timing struct {
	Wash1         Agitation     `yaml:"wash1"`
	Wash2         Agitation     `yaml:"wash2"`
	Rinse         Agitation     `yaml:"rinse"`
	Soak          Agitation     `yaml:"soak"`
	Spin          Spin          `yaml:"spin"`
	ConfirmWindow time.Duration `yaml:"confirm_window"`
	WashSettle    time.Duration `yaml:"wash_settle"`
	RinseSettle   time.Duration `yaml:"rinse_settle"`
	WashHold      time.Duration `yaml:"wash_hold"`
	RinseHold     time.Duration `yaml:"rinse_hold"`
}

// Interlock holds the wiring-dependent interlock exceptions.
type Interlock struct {
	DrainDuringSpin bool `yaml:"drain_during_spin"`
}

// Pins maps line and button names to BCM offsets, e.g. inlet_valve: 17.
type Pins struct {
	Lines   map[string]int `yaml:"lines"`
	Buttons map[string]int `yaml:"buttons"`
}

// Wiring describes relay polarity and button handling.
type Wiring struct {
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
	Lockout   time.Duration `yaml:"lockout"`
}

// PWM is the inverter drive output.
type PWM struct {
	Chip    int           `yaml:"chip"`
	Channel int           `yaml:"channel"`
	Period  time.Duration `yaml:"period"`
}

// Display is the character display geometry.
type Display struct {
	Cols int `yaml:"cols"`
	Rows int `yaml:"rows"`
}

// MQTT is the broker connection.
type MQTT struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	BufferSize  int           `yaml:"buffer_size"`
}

// HTTP is the status server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

func agitation(a cycle.Agitation) Agitation {
	return Agitation{
		Duration: a.Duration, Iterations: a.Iterations,
		Drive: a.Drive, Rest: a.Rest, Hold: a.Hold, ReverseHold: a.ReverseHold, Level: int(a.Level),
	}
}

// Default returns the reference configuration.
func Default() Config {
	prof := cycle.DefaultProfile()
	pins := gpio.DefaultPins()
	cfg := Config{
		LogLevel: "info",
		Hardware: Hardware{Chip: gpio.Chip},
		Sensor: Sensor{
			Multiplier:  27.4,
			Offset:      10.9,
			Scale:       3100,
			Samples:     prof.Samples,
			SampleDelay: prof.SampleDelay,
			DataPin:     23,
			ClockPin:    19,
		},
		Levels: Levels{
			FillTarget:    prof.FillTarget,
			AdjustMargin:  prof.AdjustMargin,
			DrainComplete: prof.DrainComplete,
		},
		Timeouts: Timeouts{Fill: prof.FillTimeout, Drain: prof.DrainTimeout, Poll: prof.Poll},
		Timing: Timing{
			Wash1: agitation(prof.Wash1),
			Wash2: agitation(prof.Wash2),
			Rinse: agitation(prof.Rinse),
			Soak:  agitation(prof.Soak),
			Spin: Spin{
				Settle:      prof.Spin.Settle,
				PostDrain:   prof.Spin.PostDrain,
				PreSpin:     prof.Spin.PreSpin,
				SpinUp:      prof.Spin.SpinUp,
				SpinLevel:   int(prof.Spin.Level),
				Coast:       prof.Spin.Coast,
				Brake:       prof.Spin.Brake,
				BrakeOnHalt: prof.Spin.BrakeOnHalt,
			},
			ConfirmWindow: program.DefaultConfig().ConfirmWindow,
			WashSettle:    prof.WashSettle,
			RinseSettle:   prof.RinseSettle,
			WashHold:      prof.WashHold,
			RinseHold:     prof.RinseHold,
		},
		Interlock: Interlock{DrainDuringSpin: true},
		Pins:      Pins{Lines: map[string]int{}, Buttons: map[string]int{}},
		Wiring:    Wiring{Debounce: 5 * time.Millisecond, Lockout: 250 * time.Millisecond},
		PWM:       PWM{Chip: 0, Channel: 0, Period: time.Millisecond},
		Display:   Display{Cols: 16, Rows: 2},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "intelliverter",
			TopicPrefix: "home/washer",
			Heartbeat:   15 * time.Minute,
			BufferSize:  256,
		},
		HTTP: HTTP{Addr: ":8080"},
	}
	for l, n := range pins.Lines {
		cfg.Pins.Lines[l.String()] = n
	}
	for b, n := range pins.Buttons {
		cfg.Pins.Buttons[b.String()] = n
	}
	return cfg
}

// Load reads path over the defaults. An empty path returns the defaults.
// Pins listed in the file replace only the pins they name.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping any field the document omits.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadEnv loads environment files without overriding variables that are
// already set. Missing files are not errors.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overlays environment variables onto cfg.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvHTTP); ok {
		c.HTTP.Addr = v
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Sensor.Multiplier == 0 {
		errs = append(errs, errors.New("sensor.multiplier must be non-zero"))
	}
	if !c.Sensor.Simulation && c.Sensor.Scale == 0 {
		errs = append(errs, errors.New("sensor.scale must be non-zero"))
	}
	if err := c.Profile().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Timing.ConfirmWindow < 0 {
		errs = append(errs, errors.New("timing.confirm_window must not be negative"))
	}
	for name, a := range map[string]Agitation{"wash1": c.Timing.Wash1, "wash2": c.Timing.Wash2, "rinse": c.Timing.Rinse, "soak": c.Timing.Soak} {
		if a.Level < 0 || a.Level > 255 {
			errs = append(errs, fmt.Errorf("timing.%s.level %d out of range 0-255", name, a.Level))
		}
	}
	if c.Timing.Spin.SpinLevel < 0 || c.Timing.Spin.SpinLevel > 255 {
		errs = append(errs, fmt.Errorf("timing.spin.spin_level %d out of range 0-255", c.Timing.Spin.SpinLevel))
	}
	if _, err := c.GPIOPins(); err != nil {
		errs = append(errs, err)
	}
	if c.PWM.Period <= 0 {
		errs = append(errs, errors.New("pwm.period must be positive"))
	}
	if c.Display.Cols < 16 || c.Display.Rows < 2 {
		errs = append(errs, fmt.Errorf("display %dx%d smaller than 16x2", c.Display.Cols, c.Display.Rows))
	}
	return errors.Join(errs...)
}

func level8(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

func (a Agitation) cycle() cycle.Agitation {
	return cycle.Agitation{
		Duration: a.Duration, Iterations: a.Iterations,
		Drive: a.Drive, Rest: a.Rest, Hold: a.Hold, ReverseHold: a.ReverseHold, Level: level8(a.Level),
	}
}

// Profile maps the configuration onto controller timings.
func (c Config) Profile() cycle.Profile {
	s := c.Timing.Spin
	return cycle.Profile{
		FillTarget:    c.Levels.FillTarget,
		AdjustMargin:  c.Levels.AdjustMargin,
		DrainComplete: c.Levels.DrainComplete,
		Samples:       c.Sensor.Samples,
		SampleDelay:   c.Sensor.SampleDelay,
		Poll:          c.Timeouts.Poll,
		FillTimeout:   c.Timeouts.Fill,
		DrainTimeout:  c.Timeouts.Drain,
		WashSettle:    c.Timing.WashSettle,
		RinseSettle:   c.Timing.RinseSettle,
		WashHold:      c.Timing.WashHold,
		RinseHold:     c.Timing.RinseHold,
		Wash1:         c.Timing.Wash1.cycle(),
		Wash2:         c.Timing.Wash2.cycle(),
		Rinse:         c.Timing.Rinse.cycle(),
		Soak:          c.Timing.Soak.cycle(),
		Spin: cycle.SpinTiming{
			Settle:      s.Settle,
			PostDrain:   s.PostDrain,
			PreSpin:     s.PreSpin,
			SpinUp:      s.SpinUp,
			Level:       level8(s.SpinLevel),
			Coast:       s.Coast,
			Brake:       s.Brake,
			BrakeOnHalt: s.BrakeOnHalt,
		},
	}
}

// ProgramConfig maps the configuration onto orchestrator timings.
func (c Config) ProgramConfig() program.Config {
	return program.Config{ConfirmWindow: c.Timing.ConfirmWindow, Poll: program.DefaultConfig().Poll}
}

// Calibration returns the level transform.
func (c Config) Calibration() level.Calibration {
	return level.Calibration{Multiplier: c.Sensor.Multiplier, Offset: c.Sensor.Offset}
}

// Rules returns the interlock rules.
func (c Config) Rules() actuator.Rules {
	return actuator.Rules{DrainDuringSpin: c.Interlock.DrainDuringSpin}
}

// GPIOPins resolves pin names. Every line and button must be assigned and
// no offset may be used twice.
func (c Config) GPIOPins() (gpio.Pins, error) {
	pins := gpio.Pins{Lines: map[gpio.Line]int{}, Buttons: map[gpio.Button]int{}}
	used := map[int]string{
		c.Sensor.DataPin:  "sensor.data",
		c.Sensor.ClockPin: "sensor.clock",
	}
	var errs []error
	claim := func(name string, n int) {
		if prev, ok := used[n]; ok {
			errs = append(errs, fmt.Errorf("pin %d used by both %s and %s", n, prev, name))
			return
		}
		used[n] = name
	}

	lines := map[string]gpio.Line{}
	for _, l := range gpio.Lines {
		lines[l.String()] = l
	}
	buttons := map[string]gpio.Button{}
	for _, b := range []gpio.Button{gpio.ButtonWash, gpio.ButtonRinse, gpio.ButtonSpin, gpio.ButtonComplete, gpio.ButtonHalt} {
		buttons[b.String()] = b
	}

	for _, name := range sortedKeys(c.Pins.Lines) {
		l, ok := lines[name]
		if !ok {
			errs = append(errs, fmt.Errorf("pins.lines: unknown line %q", name))
			continue
		}
		claim("pins.lines."+name, c.Pins.Lines[name])
		pins.Lines[l] = c.Pins.Lines[name]
	}
	for _, name := range sortedKeys(c.Pins.Buttons) {
		b, ok := buttons[name]
		if !ok {
			errs = append(errs, fmt.Errorf("pins.buttons: unknown button %q", name))
			continue
		}
		claim("pins.buttons."+name, c.Pins.Buttons[name])
		pins.Buttons[b] = c.Pins.Buttons[name]
	}
	for name, l := range lines {
		if _, ok := pins.Lines[l]; !ok {
			errs = append(errs, fmt.Errorf("pins.lines: %s not assigned", name))
		}
	}
	for name, b := range buttons {
		if _, ok := pins.Buttons[b]; !ok {
			errs = append(errs, fmt.Errorf("pins.buttons: %s not assigned", name))
		}
	}
	return pins, errors.Join(errs...)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
