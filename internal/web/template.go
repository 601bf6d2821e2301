package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/cycle-switch/internal/status"
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
	"secs": func(d time.Duration) string {
		return fmt.Sprintf("%gs", d.Seconds())
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Cycle Switch - {{.Config.Name}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.run { color: green; font-weight: bold; }
.pause { color: #888; }
.error { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>{{.Config.Name}}<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Switch</h2>
<table>
<tr><th>State</th><td id="sw-state" class="{{.Report.State}}">{{.Report.State}}</td></tr>
<tr><th>Time left</th><td id="sw-time-left">{{with .Report.TimeLeft}}{{.}}s{{else}}-{{end}}</td></tr>
<tr><th>Cycles left</th><td id="sw-count-left">{{with .Report.CountLeft}}{{.}}{{else}}-{{end}}</td></tr>
<tr><th>Pin</th><td>{{.Config.Pin}}{{if not .Config.ActiveHigh}} (active low){{end}}</td></tr>
<tr><th>Work</th><td>{{secs .Switch.Params.Work}}</td></tr>
<tr><th>Pause</th><td>{{secs .Switch.Params.Pause}}</td></tr>
<tr><th>Count</th><td>{{.Switch.Params.Count}}</td></tr>
<tr><th>Run time</th><td>{{secs .Switch.Elapsed}}</td></tr>
{{if .Switch.RunID}}<tr><th>Run</th><td>{{.Switch.RunID}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Start</th><td>{{.Counts.Starts}}</td></tr>
<tr><th>Work done</th><td>{{.Counts.WorkDone}}</td></tr>
<tr><th>Pause done</th><td>{{.Counts.PauseDone}}</td></tr>
<tr><th>Finished</th><td>{{.Counts.Finished}} ({{.Counts.Completed}} completed, {{.Counts.StoppedRun}} stopped, {{.Counts.Faults}} faults)</td></tr>
{{if .LastError}}<tr><th>Last error</th><td class="error">{{.LastError}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/state.json">state</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("sw-state");
  var leftEl = document.getElementById("sw-time-left");
  var countEl = document.getElementById("sw-count-left");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onerror = function() { setDot("err", "error"); };
    ws.onclose = function() {
      setDot("pending", "reconnecting");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(e) {
      try {
        var r = JSON.parse(e.data);
        stateEl.textContent = r.state;
        stateEl.className = r.state;
        leftEl.textContent = r.time_left === undefined ? "-" : r.time_left + "s";
        countEl.textContent = r.count_left === undefined ? "-" : r.count_left;
      } catch (err) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Report status.SwitchJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Report:   status.NewSwitchJSON(snap.Config.Pin, snap.Switch),
	}
	return indexTmpl.Execute(w, data)
}
