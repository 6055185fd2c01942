package utbetaling

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// BuildUtbetaling — чистая функция построения платёжного поручения из решения
// и истории выплат дела. Поручение и все его строки получают один общий
// timestamp (opprettet == avstemmingsnoekkel): поручение сверяется как
// неделимая единица, и clock skew между строками исключён.
func BuildUtbetaling(tidligere []domain.Utbetaling, vedtak domain.Vedtak, opprettet time.Time) (domain.Utbetaling, error) {
	if errs := vedtak.Validate(); len(errs) > 0 {
		return domain.Utbetaling{}, errors.Join(errs...)
	}

	perioder := make([]domain.Vedtaksperiode, len(vedtak.PensjonTilUtbetaling))
	copy(perioder, vedtak.PensjonTilUtbetaling)
	sort.SliceStable(perioder, func(i, j int) bool {
		return perioder[i].Fra.Before(perioder[j].Fra)
	})

	// Прекращение не может открывать историю дела: ему нечего закрывать
	// во внешнем реестре.
	if len(tidligere) == 0 && len(perioder) == 1 && perioder[0].Type == domain.PeriodetypeOpphoer {
		return domain.Utbetaling{}, domain.ErrOpphoerFoerstegang
	}

	utbetalingID := uuid.NewString()
	erstatter := domain.SisteAksepterteLinjeID(tidligere)

	linjer := make([]domain.Utbetalingslinje, 0, len(perioder))
	for _, periode := range perioder {
		linje := domain.Utbetalingslinje{
			ID:           domain.UtbetalingslinjeId(uuid.NewString()),
			Opprettet:    opprettet,
			Fra:          foersteDagIMaaneden(periode.Fra),
			Beloep:       periode.Beloep,
			UtbetalingID: utbetalingID,
			SakID:        vedtak.SakID,
			ErstatterID:  erstatter,
		}
		if periode.Til != nil {
			til := sisteDagIMaaneden(*periode.Til)
			linje.Til = &til
		}
		if periode.Type == domain.PeriodetypeOpphoer {
			linje.Endring = domain.LinjeendringOpphoer
		}
		linjer = append(linjer, linje)

		// Последующие строки поручения замещают предыдущую строку этого же поручения.
		id := linje.ID
		erstatter = &id
	}

	return domain.Utbetaling{
		ID:                 utbetalingID,
		SakID:              vedtak.SakID,
		BehandlingID:       vedtak.BehandlingID,
		VedtakID:           vedtak.VedtakID,
		Status:             domain.StatusSendt,
		Opprettet:          opprettet,
		Endret:             opprettet,
		Avstemmingsnoekkel: opprettet,
		Stoenadsmottaker:   vedtak.Stoenadsmottaker,
		Saksbehandler:      vedtak.Saksbehandler,
		Attestant:          vedtak.Attestant,
		Linjer:             linjer,
	}, nil
}

// foersteDagIMaaneden нормализует дату к первому дню месяца.
func foersteDagIMaaneden(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// sisteDagIMaaneden нормализует дату к последнему дню месяца.
func sisteDagIMaaneden(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).
		AddDate(0, 1, -1)
}
