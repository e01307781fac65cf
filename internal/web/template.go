package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/status"
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
	"lit": func(b led.Brightness) bool { return b != led.Off },
	"ms":  func(d time.Duration) int64 { return d.Milliseconds() },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO LEDs</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.blink { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GPIO LEDs</h1>

<h2>LEDs</h2>
<table>
<tr><th>Name</th><th>Line</th><th>State</th><th>Flags</th></tr>
{{range .LEDs}}<tr>
<td>{{.Name}}</td>
<td>{{.Chip}}:{{.GPIO}}</td>
<td>{{if .BlinkActive}}<span class="blink">BLINK {{ms .DelayOn}}/{{ms .DelayOff}}ms</span>{{else if lit .Brightness}}<span class="on">ON</span>{{else}}<span class="off">OFF</span>{{end}}</td>
<td>{{if .ActiveLow}}active-low {{end}}{{if .CanSleep}}can-sleep {{end}}{{if .Retain}}retain{{end}}</td>
</tr>
{{else}}<tr><td colspan="4">no LEDs</td></tr>
{{end}}</table>
<p>Interlock: {{if .InterlockNames}}{{range .InterlockNames}}{{.}} {{end}}{{else}}clear{{end}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Workers</th><td>{{.Config.Workers}}</td></tr>
<tr><th>Heartbeat</th><td>{{if le .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/leds">API</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	var names []string
	for _, r := range []led.Role{led.RoleRed, led.RoleGreen, led.RoleBlue} {
		if snap.Interlock&r != 0 {
			names = append(names, r.String())
		}
	}
	data := struct {
		status.Snapshot
		Uptime         time.Duration
		InterlockNames []string
	}{
		Snapshot:       snap,
		Uptime:         snap.Uptime(),
		InterlockNames: names,
	}
	return indexTmpl.Execute(w, data)
}
