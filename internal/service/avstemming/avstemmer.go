package avstemming

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/metrics"
)

// Avstemmer выполняет один прогон сверки: читает выплаты окна из реестра,
// строит батч и отправляет его. Реестр только читается, поэтому прогон
// можно повторять для того же окна сколько угодно раз.
type Avstemmer struct {
	repo    domain.UtbetalingRepository
	sender  *Sender
	cfg     Config
	logger  *log.Entry
	metrics *metrics.UtbetalingMetrics
}

// NewAvstemmer создаёт рабочий экземпляр сверки.
func NewAvstemmer(repo domain.UtbetalingRepository, sender *Sender, cfg Config, logger *log.Entry) *Avstemmer {
	avstemmer := NewAvstemmerWithoutMetrics(repo, sender, cfg, logger)
	avstemmer.metrics = metrics.NewUtbetalingMetrics()
	return avstemmer
}

// NewAvstemmerWithoutMetrics создаёт сверку без метрик (для тестов).
func NewAvstemmerWithoutMetrics(repo domain.UtbetalingRepository, sender *Sender, cfg Config, logger *log.Entry) *Avstemmer {
	if logger == nil {
		logger = log.WithField("component", "avstemming")
	}
	return &Avstemmer{
		repo:   repo,
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// Run выполняет сверку окна [fra, til) под идентификатором батча batchID.
func (a *Avstemmer) Run(batchID string, fra, til time.Time) error {
	utbetalinger, err := a.repo.ListByWindow(fra, til)
	if err != nil {
		return fmt.Errorf("list utbetalinger in window: %w", err)
	}

	meldinger := BuildMeldinger(batchID, utbetalinger, fra, til, a.cfg)
	if err := a.sender.SendBatch(batchID, meldinger); err != nil {
		return err
	}

	a.logger.WithFields(log.Fields{
		"batch_id":      batchID,
		"fra":           fra.Format(time.RFC3339),
		"til":           til.Format(time.RFC3339),
		"utbetalinger":  len(utbetalinger),
		"datameldinger": len(meldinger) - 2,
	}).Info("avstemming fullført")
	if a.metrics != nil {
		a.metrics.RecordAvstemming(len(utbetalinger))
	}

	return nil
}
