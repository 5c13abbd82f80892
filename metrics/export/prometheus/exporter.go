package prometheus

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/dispatch"
	"github.com/MrEthical07/sessionguard/metrics/export/internaldefs"
)

// Source is the read side of an Engine used by the exporter.
type Source interface {
	MetricsSnapshot() sessionguard.MetricsSnapshot
	AuditDropped() uint64
	DispatchSnapshot() (dispatch.Snapshot, bool)
}

// Exporter renders engine metrics on demand.
type Exporter struct {
	source Source
}

// New creates an exporter reading from engine.
func New(engine *sessionguard.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource creates an exporter reading from source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the rendered metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the current metrics. It returns "" when metrics are disabled
// and nothing else has been recorded.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	dispatchSnap, hasDispatch := e.source.DispatchSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && !hasDispatch {
		return ""
	}

	w := &textWriter{}
	for _, def := range internaldefs.CounterDefs {
		w.family(def.Name, def.Help, "counter")
		w.sample(def.Name, "", strconv.FormatUint(snapshot.Counters[def.ID], 10))
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		w.histogram(def.Name, def.Help, buckets)
	}

	w.family(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	w.sample(internaldefs.AuditDroppedName, "", strconv.FormatUint(dropped, 10))

	if hasDispatch {
		state := internaldefs.BreakerStateValue(dispatchSnap.Breaker.State)
		w.family(internaldefs.BreakerStateName, internaldefs.BreakerStateHelp, "gauge")
		w.sample(internaldefs.BreakerStateName, "", strconv.FormatInt(state, 10))
		w.family(internaldefs.DispatchTokensName, internaldefs.DispatchTokensHelp, "gauge")
		w.sample(internaldefs.DispatchTokensName, "", strconv.FormatFloat(dispatchSnap.Tokens, 'g', -1, 64))
	}
	return w.String()
}

// textWriter emits the Prometheus text exposition format.
type textWriter struct {
	strings.Builder
}

func (w *textWriter) family(name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}

func (w *textWriter) sample(name, labels, value string) {
	if labels != "" {
		fmt.Fprintf(w, "%s{%s} %s\n", name, labels, value)
		return
	}
	fmt.Fprintf(w, "%s %s\n", name, value)
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64) {
	w.family(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", `le="`+le+`"`, strconv.FormatUint(cumulative[i], 10))
	}
	w.sample(name+"_count", "", strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	// bucket counts only; no running sum is kept
	w.sample(name+"_sum", "", "0")
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
