package advisor

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/facette/natsort"
	"github.com/gorilla/mux"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusHandler renders active FilterRules and the latest
// ParsedRecommendations as tables, the same way BackendScheduler.
// StatusHandler renders its job/tenant tables.
func (p *Processor) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	rules := p.filters.Active()
	names := make([]string, len(rules))
	byName := make(map[string]int, len(rules))
	for i, r := range rules {
		names[i] = r.Name
		byName[r.Name] = i
	}
	natsort.Sort(names)

	rulesTable := table.NewWriter()
	rulesTable.AppendHeader(table.Row{"name", "signal", "condition", "action", "installed"})
	for _, name := range names {
		r := rules[byName[name]]
		rulesTable.AppendRow(table.Row{r.Name, r.SignalType, r.Condition, r.Action, humanize.Time(r.InstalledAt)})
	}
	rulesTable.AppendSeparator()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, fmt.Sprintf("active filter rules (%d):\n", len(rules)))
	_, _ = io.WriteString(w, rulesTable.Render())
	_, _ = io.WriteString(w, "\n\n")

	latest := p.GetActiveRecommendations()
	recTable := table.NewWriter()
	recTable.AppendHeader(table.Row{"id", "type", "priority", "description", "savings"})
	for _, rec := range latest.Recommendations {
		recTable.AppendRow(table.Row{rec.ID, rec.Type, rec.Priority, rec.Description, rec.EstimatedSavings})
	}
	recTable.AppendSeparator()

	_, _ = io.WriteString(w, fmt.Sprintf("latest recommendations (generated %s, total %d):\n",
		humanize.Time(latest.GeneratedAt), latest.Summary.Total))
	_, _ = io.WriteString(w, recTable.Render())
}

// Router builds the self-observability HTTP surface: GET /status and GET
// /metrics. Callers mount it on cfg.ListenAddr when MetricsEnabled.
func (p *Processor) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", p.StatusHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
