package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atharvap8/intelliverter/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"lcd": func(lines []string, cols int) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			if n := utf8.RuneCountInString(l); n < cols {
				l += strings.Repeat(" ", cols-n)
			}
			out[i] = l
		}
		return out
	},
	"onoff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"liters": func(l float64) string {
		return fmt.Sprintf("%.2f L", l)
	},
	"clock": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>IntelliVerter</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.lcd { background: #2b4; color: #021; padding: 8px 12px; display: inline-block; font-size: 1.3em; white-space: pre; border-radius: 4px; }
form { display: inline; }
button { font-family: monospace; margin: 2px; }
</style>
</head>
<body>
<h1>IntelliVerter Washing Machine</h1>

<div class="lcd">{{range lcd .Display .Cols}}{{.}}
{{end}}</div>

<h2>Program</h2>
<table>
<tr><th>Selected</th><td>{{.Mode}}</td></tr>
<tr><th>Stage</th><td>{{if .Stage}}{{.Stage}}{{else}}-{{end}}</td></tr>
<tr><th>Phase</th><td{{if .AwaitingBalance}} class="warn"{{end}}>{{.Phase}}{{if .AwaitingBalance}} (press halt or confirm to spin){{end}}</td></tr>
<tr><th>Iteration</th><td>{{.Iteration}}</td></tr>
<tr><th>Water level</th><td>{{if .LevelValid}}{{liters .Level}}{{else}}unknown{{end}}</td></tr>
{{with .Current}}<tr><th>Run</th><td>{{.Mode}} since {{clock .Started}}</td></tr>
<tr><th>Water used</th><td>{{liters .WaterUsed}}</td></tr>{{end}}
</table>
{{if .Controls}}
<p>
{{if .Running}}<form method="post" action="/api/command/halt"><input type="hidden" name="redirect" value="1"><button>Halt</button></form>
{{if .AwaitingBalance}}<form method="post" action="/api/command/confirm"><input type="hidden" name="redirect" value="1"><button>Confirm balance</button></form>{{end}}
{{else}}{{range .Programs}}<form method="post" action="/api/command/{{.}}"><input type="hidden" name="redirect" value="1"><button>{{.}}</button></form>
{{end}}{{end}}
</p>
{{end}}
<h2>Outputs</h2>
<table>
<tr><th>Inlet valve</th><td class="{{if .Actuators.InletValve}}on{{else}}off{{end}}">{{onoff .Actuators.InletValve}}</td></tr>
<tr><th>Wash drain</th><td class="{{if .Actuators.WashDrain}}on{{else}}off{{end}}">{{onoff .Actuators.WashDrain}}</td></tr>
<tr><th>Spin drain</th><td class="{{if .Actuators.SpinDrain}}on{{else}}off{{end}}">{{onoff .Actuators.SpinDrain}}</td></tr>
<tr><th>Inverter</th><td class="{{if .Actuators.InverterPower}}on{{else}}off{{end}}">{{onoff .Actuators.InverterPower}}</td></tr>
<tr><th>Changeover</th><td>{{onoff .Actuators.Changeover1}} / {{onoff .Actuators.Changeover2}}</td></tr>
<tr><th>Drive level</th><td>{{.Actuators.DriveLevel}}</td></tr>
<tr><th>Brake</th><td class="{{if .Actuators.Brake}}warn{{else}}off{{end}}">{{onoff .Actuators.Brake}}</td></tr>
</table>

{{with .Last}}
<h2>Last Run</h2>
<table>
<tr><th>Program</th><td>{{.Mode}}</td></tr>
<tr><th>Outcome</th><td{{if .Err}} class="warn"{{end}}>{{.Outcome}}{{if .Err}}: {{.Err}}{{end}}</td></tr>
<tr><th>Started</th><td>{{clock .Started}}</td></tr>
<tr><th>Runtime</th><td>{{.RuntimeMinutes}} min</td></tr>
<tr><th>Water used</th><td>{{liters .WaterUsed}}</td></tr>
{{range .Stages}}<tr><th>&nbsp;&nbsp;{{.Stage}}</th><td>{{liters .WaterUsed}}, {{.Duration}}</td></tr>
{{end}}</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{clock .StartTime}}</td></tr>
<tr><th>Programs run</th><td>{{.Runs}}</td></tr>
<tr><th>Fill target</th><td>{{liters .Config.FillTarget}}</td></tr>
<tr><th>Drain complete</th><td>{{liters .Config.DrainComplete}}</td></tr>
<tr><th>Drain during spin</th><td>{{if .Config.DrainDuringSpin}}yes{{else}}no{{end}}</td></tr>
<tr><th>Simulation</th><td>{{if .Config.Simulation}}yes{{else}}no{{end}}</td></tr>
</table>
</body>
</html>
`

const defaultDisplayCols = 16

var programCommands = []string{"wash", "rinse", "spin", "complete", "soak"}

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Controls bool
		Programs []string
		Cols     int
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Controls: controls,
		Programs: programCommands,
		Cols:     snap.Config.DisplayCols,
	}
	if data.Cols <= 0 {
		data.Cols = defaultDisplayCols
	}
	return indexTmpl.Execute(w, data)
}
