package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UtbetalingMetrics содержит метрики пути выплат и сверки.
type UtbetalingMetrics struct {
	// Счётчики операций
	sendt            prometheus.Counter
	duplikater       prometheus.Counter
	avvisteVedtak    prometheus.Counter
	overfoeringsfeil prometheus.Counter

	// Квитанции и статусы
	kvitteringer         *prometheus.CounterVec
	statusOverganger     *prometheus.CounterVec
	manuelleKvitteringer prometheus.Counter

	// Гистограмма времени submit
	submitDuration prometheus.Histogram

	// Сверка
	avstemmingKjoeringer prometheus.Counter
	avstemmingDetaljer   prometheus.Counter
}

// NewUtbetalingMetrics создаёт новый экземпляр метрик выплат.
func NewUtbetalingMetrics() *UtbetalingMetrics {
	return newUtbetalingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newUtbetalingMetricsWithRegisterer(registerer prometheus.Registerer) *UtbetalingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &UtbetalingMetrics{
		sendt: registerCounter(registerer, prometheus.CounterOpts{
			Name: "utbetaling_sendt_total",
			Help: "Total number of payment instructions transmitted and persisted",
		}),
		duplikater: registerCounter(registerer, prometheus.CounterOpts{
			Name: "utbetaling_duplikat_total",
			Help: "Total number of idempotent resubmissions of an already stored vedtak",
		}),
		avvisteVedtak: registerCounter(registerer, prometheus.CounterOpts{
			Name: "utbetaling_vedtak_avvist_total",
			Help: "Total number of vedtak rejected by the mapper",
		}),
		overfoeringsfeil: registerCounter(registerer, prometheus.CounterOpts{
			Name: "utbetaling_overfoering_feilet_total",
			Help: "Total number of failed oppdrag transmissions",
		}),
		kvitteringer: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "utbetaling_kvittering_mottatt_total",
			Help: "Total number of receipts processed grouped by melding kode",
		}, []string{"kode"}),
		statusOverganger: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "utbetaling_status_overgang_total",
			Help: "Total number of terminal status transitions grouped by status",
		}, []string{"status"}),
		manuelleKvitteringer: registerCounter(registerer, prometheus.CounterOpts{
			Name: "utbetaling_manuell_kvittering_total",
			Help: "Total number of manually synthesized receipts",
		}),
		submitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "utbetaling_submit_duration_seconds",
			Help:    "Duration of submit operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		avstemmingKjoeringer: registerCounter(registerer, prometheus.CounterOpts{
			Name: "avstemming_kjoeringer_total",
			Help: "Total number of reconciliation batch runs",
		}),
		avstemmingDetaljer: registerCounter(registerer, prometheus.CounterOpts{
			Name: "avstemming_detaljer_total",
			Help: "Total number of detail records included in reconciliation batches",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSendt увеличивает счётчик отправленных поручений.
func (m *UtbetalingMetrics) RecordSendt() {
	m.sendt.Inc()
}

// RecordDuplikat увеличивает счётчик идемпотентных повторов.
func (m *UtbetalingMetrics) RecordDuplikat() {
	m.duplikater.Inc()
}

// RecordAvvistVedtak увеличивает счётчик решений, отклонённых mapper'ом.
func (m *UtbetalingMetrics) RecordAvvistVedtak() {
	m.avvisteVedtak.Inc()
}

// RecordOverfoeringFeil увеличивает счётчик неудачных передач.
func (m *UtbetalingMetrics) RecordOverfoeringFeil() {
	m.overfoeringsfeil.Inc()
}

// RecordKvittering увеличивает счётчик квитанций по коду сообщения.
func (m *UtbetalingMetrics) RecordKvittering(kode string) {
	m.kvitteringer.WithLabelValues(kode).Inc()
}

// RecordStatusOvergang увеличивает счётчик переходов в конечный статус.
func (m *UtbetalingMetrics) RecordStatusOvergang(status string) {
	m.statusOverganger.WithLabelValues(status).Inc()
}

// RecordManuellKvittering увеличивает счётчик ручных квитанций.
func (m *UtbetalingMetrics) RecordManuellKvittering() {
	m.manuelleKvitteringer.Inc()
}

// RecordSubmitDuration записывает время выполнения submit.
func (m *UtbetalingMetrics) RecordSubmitDuration(duration time.Duration) {
	m.submitDuration.Observe(duration.Seconds())
}

// RecordAvstemming фиксирует запуск сверки и число её detalj-записей.
func (m *UtbetalingMetrics) RecordAvstemming(antallDetaljer int) {
	m.avstemmingKjoeringer.Inc()
	m.avstemmingDetaljer.Add(float64(antallDetaljer))
}
