package server

import (
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/runner"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>pagewatch</title>
<style>
body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
h1 { font-size: 1.2em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.4em 0.8em; border-bottom: 1px solid #333; }
th { color: #888; }
.ok { color: #6c6; }
.err { color: #e66; }
.pending { color: #888; }
a { color: #8af; }
</style>
</head>
<body>
<h1>pagewatch &mdash; {{.Count}} watches, up {{.Uptime}}</h1>
<table>
<tr><th>Watch</th><th>ID</th><th>Status</th><th>Last check</th><th>Changes</th><th>Errors</th></tr>
{{range .Rows}}
<tr>
<td><a href="{{.URL}}">{{.Name}}</a></td>
<td>{{.ID}}</td>
<td class="{{.StatusClass}}">{{.Status}}</td>
<td>{{.LastCheck}}</td>
<td>{{.Changes}}</td>
<td>{{.LastError}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))

type dashboardRow struct {
	Name        string
	ID          string
	URL         string
	Status      string
	StatusClass string
	LastCheck   string
	Changes     int
	LastError   string
}

type dashboardData struct {
	Count  int
	Uptime string
	Rows   []dashboardRow
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/dashboard" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	watches := s.engine.Watches()
	results := s.engine.Results()

	data := dashboardData{
		Count:  len(watches),
		Uptime: time.Since(s.engine.StartedAt()).Round(time.Second).String(),
	}
	for id, watch := range watches {
		data.Rows = append(data.Rows, buildRow(id, watch, results))
	}
	sort.Slice(data.Rows, func(i, j int) bool {
		return data.Rows[i].Name < data.Rows[j].Name
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Errorw("Dashboard render failed", "error", err)
	}
}

func buildRow(id string, watch *config.Watch, results map[string]runner.Result) dashboardRow {
	row := dashboardRow{
		Name:        watch.Name,
		ID:          id,
		URL:         watch.URL,
		Status:      "pending",
		StatusClass: "pending",
		LastCheck:   "never",
	}

	res, ok := results[id]
	if !ok {
		return row
	}

	row.LastCheck = res.LastCheck.Format(time.RFC3339)
	row.Changes = len(res.Changes)
	if res.Success {
		row.Status = "ok"
		row.StatusClass = "ok"
	} else {
		row.Status = "failing"
		row.StatusClass = "err"
		row.LastError = res.Error
	}
	return row
}
