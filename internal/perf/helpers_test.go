package perf

import (
	"slices"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// percentile95 uses nearest-rank on a sorted copy.
func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[(len(sorted)-1)*95/100]
}

// series finds the single metric in name whose labels include want.
func series(t *testing.T, families []*dto.MetricFamily, name string, want map[string]string) (*dto.Metric, dto.MetricType) {
	t.Helper()
	idx := slices.IndexFunc(families, func(mf *dto.MetricFamily) bool { return mf.GetName() == name })
	if idx < 0 {
		t.Fatalf("metric family %s not gathered", name)
	}
	family := families[idx]
	for _, m := range family.GetMetric() {
		if matches(m.GetLabel(), want) {
			return m, family.GetType()
		}
	}
	t.Fatalf("no %s series with labels %v", name, want)
	return nil, 0
}

func matches(pairs []*dto.LabelPair, want map[string]string) bool {
	hit := 0
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			hit++
		}
	}
	return hit == len(want)
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	m, kind := series(t, families, name, labels)
	switch kind {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	}
	t.Fatalf("%s is %s, not a counter or gauge", name, kind)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	m, _ := series(t, families, name, labels)
	h := m.GetHistogram()
	if h.GetSampleCount() == 0 {
		t.Fatalf("histogram %s has no samples", name)
	}
	return h.GetSampleSum() / float64(h.GetSampleCount())
}
