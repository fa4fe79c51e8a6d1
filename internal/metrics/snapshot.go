package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is the gathered state of a registry, keyed by full metric name.
type Snapshot map[string]*dto.MetricFamily

// Gather collects every metric family from g.
func Gather(g prometheus.Gatherer) (Snapshot, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	snap := make(Snapshot, len(families))
	for _, mf := range families {
		snap[mf.GetName()] = mf
	}
	return snap, nil
}

// Value sums the counter, gauge or untyped values of name across every
// series whose labels include the given name/value pairs. Histograms
// contribute their sample count.
func (s Snapshot) Value(name string, labelPairs ...string) float64 {
	mf, ok := s[name]
	if !ok {
		return 0
	}

	var total float64
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, labelPairs) {
			continue
		}
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			total += m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			total += m.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			total += float64(m.GetHistogram().GetSampleCount())
		default:
			total += m.GetUntyped().GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, pairs []string) bool {
	for i := 0; i+1 < len(pairs); i += 2 {
		found := false
		for _, l := range m.GetLabel() {
			if l.GetName() == pairs[i] && l.GetValue() == pairs[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// WriteText writes every metric family from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		return closer.Close()
	}
	return nil
}
