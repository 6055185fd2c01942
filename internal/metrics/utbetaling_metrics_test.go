package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUtbetalingMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newUtbetalingMetricsWithRegisterer(registry)

	m.RecordSendt()
	m.RecordSendt()
	m.RecordDuplikat()
	m.RecordKvittering("00")
	m.RecordKvittering("08")
	m.RecordKvittering("08")
	m.RecordStatusOvergang("GODKJENT")
	m.RecordManuellKvittering()
	m.RecordSubmitDuration(25 * time.Millisecond)
	m.RecordAvstemming(3)

	if got := testutil.ToFloat64(m.sendt); got != 2 {
		t.Fatalf("expected 2 sendt, got %v", got)
	}
	if got := testutil.ToFloat64(m.duplikater); got != 1 {
		t.Fatalf("expected 1 duplikat, got %v", got)
	}
	if got := testutil.ToFloat64(m.kvitteringer.WithLabelValues("08")); got != 2 {
		t.Fatalf("expected 2 kvitteringer with kode 08, got %v", got)
	}
	if got := testutil.ToFloat64(m.statusOverganger.WithLabelValues("GODKJENT")); got != 1 {
		t.Fatalf("expected 1 GODKJENT transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.avstemmingDetaljer); got != 3 {
		t.Fatalf("expected 3 avstemming detaljer, got %v", got)
	}
}

func TestUtbetalingMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newUtbetalingMetricsWithRegisterer(registry)
	second := newUtbetalingMetricsWithRegisterer(registry)

	first.RecordSendt()
	second.RecordSendt()

	if got := testutil.ToFloat64(second.sendt); got != 2 {
		t.Fatalf("expected shared collector with value 2, got %v", got)
	}
}
