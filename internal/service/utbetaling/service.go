package utbetaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/metrics"
)

// EventUtbetalingOppdatert — имя доменного события смены статуса поручения.
const EventUtbetalingOppdatert = "utbetaling_oppdatert"

// ManuellSystemID — фиксированный идентификатор системы для синтетических
// квитанций, созданных оператором в обход внешней системы.
const ManuellSystemID = "UTBETALING-ADMIN"

// maxKjedeForsoek ограничивает перестроения цепочки замещений при
// конкурентном сдвиге принятого хвоста дела.
const maxKjedeForsoek = 3

// StatusEvent — доменное событие, публикуемое после смены статуса поручения.
type StatusEvent struct {
	EventName   string `json:"@event_name"`
	VedtakID    string `json:"@vedtakId"`
	Status      string `json:"@status"`
	Beskrivelse string `json:"@beskrivelse"`
}

// Service оркестрирует путь решения: mapper → gateway → store → события.
// Только Submit/ApplyStatus/ForceKvittering мутируют реестр выплат.
type Service struct {
	repo      domain.UtbetalingRepository
	hendelser domain.HendelseRepository
	gateway   domain.OppdragGateway
	logger    *log.Entry
	metrics   *metrics.UtbetalingMetrics
	now       func() time.Time
}

// NewService создаёт рабочий экземпляр сервиса выплат.
func NewService(
	repo domain.UtbetalingRepository,
	hendelser domain.HendelseRepository,
	gateway domain.OppdragGateway,
	logger *log.Entry,
) *Service {
	svc := NewServiceWithoutMetrics(repo, hendelser, gateway, logger)
	svc.metrics = metrics.NewUtbetalingMetrics()
	return svc
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	repo domain.UtbetalingRepository,
	hendelser domain.HendelseRepository,
	gateway domain.OppdragGateway,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "utbetaling-service")
	}
	return &Service{
		repo:      repo,
		hendelser: hendelser,
		gateway:   gateway,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit строит и отправляет платёжное поручение по решению.
// Повторный submit той же версии решения идемпотентен и возвращает
// сохранённое поручение. Поручение не сохраняется, пока передача
// во внешнюю систему не подтверждена.
func (s *Service) Submit(vedtak domain.Vedtak) (domain.Utbetaling, error) {
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordSubmitDuration(s.now().Sub(start))
		}
	}()

	eksisterende, err := s.repo.GetByVedtakID(vedtak.VedtakID)
	if err == nil {
		s.logger.WithField("vedtak_id", vedtak.VedtakID.String()).
			Info("utbetaling already exists for vedtak, returning stored instruction")
		if s.metrics != nil {
			s.metrics.RecordDuplikat()
		}
		return eksisterende, nil
	}
	if !errors.Is(err, domain.ErrUtbetalingIkkeFunnet) {
		return domain.Utbetaling{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	var utbetaling domain.Utbetaling
	for forsoek := 1; ; forsoek++ {
		tidligere, err := s.repo.ListBySak(vedtak.SakID)
		if err != nil {
			return domain.Utbetaling{}, fmt.Errorf("load sak history: %w", err)
		}

		utbetaling, err = BuildUtbetaling(tidligere, vedtak, s.now().UTC())
		if err != nil {
			s.logger.WithError(err).WithField("vedtak_id", vedtak.VedtakID.String()).
				Warn("vedtak rejected by mapper")
			if s.metrics != nil {
				s.metrics.RecordAvvistVedtak()
			}
			return domain.Utbetaling{}, err
		}

		// Исходное решение сохраняем рядом с поручением для аудита и replay.
		if utbetaling.Vedtak, err = json.Marshal(vedtak); err != nil {
			return domain.Utbetaling{}, fmt.Errorf("marshal vedtak payload: %w", err)
		}

		sendt, err := s.gateway.Send(utbetaling)
		if err != nil {
			s.logger.WithError(err).WithField("vedtak_id", vedtak.VedtakID.String()).
				Error("oppdrag transmission failed, nothing persisted")
			if s.metrics != nil {
				s.metrics.RecordOverfoeringFeil()
			}
			return domain.Utbetaling{}, fmt.Errorf("%w: %v", domain.ErrOverfoering, err)
		}
		utbetaling.Oppdragsmelding = sendt

		err = s.repo.Create(utbetaling)
		if err == nil {
			break
		}
		if domain.IsDuplikat(err) {
			// Параллельный submit той же версии решения успел первым.
			return s.repo.GetByVedtakID(vedtak.VedtakID)
		}
		if errors.Is(err, domain.ErrKjedeUtdatert) && forsoek < maxKjedeForsoek {
			// Параллельная квитанция сдвинула принятый хвост дела между
			// чтением истории и вставкой. Цепочка строится заново.
			s.logger.WithFields(log.Fields{
				"vedtak_id": vedtak.VedtakID.String(),
				"forsoek":   forsoek,
			}).Warn("sak history changed during submit, rebuilding chain")
			continue
		}
		return domain.Utbetaling{}, fmt.Errorf("persist utbetaling: %w", err)
	}

	s.appendHendelse(domain.Hendelse{
		VedtakID: vedtak.VedtakID,
		Type:     domain.HendelseSendt,
		Detalj:   fmt.Sprintf("utbetaling %s sendt med %d linjer", utbetaling.ID, len(utbetaling.Linjer)),
		Occurred: utbetaling.Opprettet,
	})

	s.logger.WithFields(log.Fields{
		"vedtak_id":     vedtak.VedtakID.String(),
		"sak_id":        vedtak.SakID.String(),
		"utbetaling_id": utbetaling.ID,
		"linjer":        len(utbetaling.Linjer),
	}).Info("utbetaling sendt")
	if s.metrics != nil {
		s.metrics.RecordSendt()
	}

	return utbetaling, nil
}

// HandleKvittering сохраняет асинхронно пришедшую квитанцию.
// Конечный статус здесь не выбирается: классификация исхода — отдельный шаг,
// который вызывает ApplyStatus.
func (s *Service) HandleKvittering(raw []byte) (domain.Kvittering, error) {
	kvittering, err := s.gateway.DecodeKvittering(raw)
	if err != nil {
		return domain.Kvittering{}, fmt.Errorf("decode kvittering: %w", err)
	}

	endret := s.now().UTC()
	if err := s.repo.UpdateKvittering(
		kvittering.VedtakID, raw,
		kvittering.Beskrivelse, kvittering.Feilkode, kvittering.MeldingKode,
		endret,
	); err != nil {
		return domain.Kvittering{}, fmt.Errorf("store kvittering: %w", err)
	}

	s.appendHendelse(domain.Hendelse{
		VedtakID: kvittering.VedtakID,
		Type:     domain.HendelseKvitteringMottatt,
		Detalj:   fmt.Sprintf("kvittering med kode %s", kvittering.MeldingKode),
		Occurred: endret,
	})

	s.logger.WithFields(log.Fields{
		"vedtak_id":    kvittering.VedtakID.String(),
		"melding_kode": kvittering.MeldingKode,
	}).Info("kvittering mottatt")
	if s.metrics != nil {
		s.metrics.RecordKvittering(kvittering.MeldingKode)
	}

	return kvittering, nil
}

// ApplyStatus переводит поручение в конечный статус и публикует доменное
// событие через outbox. Переход из конечного статуса запрещён; повтор того же
// статуса — no-op. Статус и событие фиксируются одной транзакцией реестра:
// конечный статус без события для подписчиков невозможен.
func (s *Service) ApplyStatus(vedtakID domain.VedtakId, status domain.UtbetalingStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", domain.ErrUgyldigStatus, status)
	}

	utbetaling, err := s.repo.GetByVedtakID(vedtakID)
	if err != nil {
		return fmt.Errorf("load utbetaling: %w", err)
	}
	if utbetaling.Status.Terminal() {
		if utbetaling.Status == status {
			s.logger.WithField("vedtak_id", vedtakID.String()).
				Debug("status already applied, skipping")
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", domain.ErrStatusLaast, utbetaling.Status, status)
	}

	event, err := statusEventMessage(utbetaling, status)
	if err != nil {
		return err
	}

	endret := s.now().UTC()
	if err := s.repo.UpdateStatusWithEvent(vedtakID, status, endret, event); err != nil {
		if domain.IsInkonsistent(err) {
			// Реестр и сервис расходятся в том, какое поручение существует.
			s.logger.WithError(err).WithField("vedtak_id", vedtakID.String()).
				Error("ledger inconsistency on status update, operator attention required")
		}
		return err
	}

	s.appendHendelse(domain.Hendelse{
		VedtakID: vedtakID,
		Type:     domain.HendelseStatusEndret,
		Detalj:   string(status),
		Occurred: endret,
	})

	s.logger.WithFields(log.Fields{
		"vedtak_id": vedtakID.String(),
		"status":    string(status),
	}).Info("utbetaling status oppdatert")
	if s.metrics != nil {
		s.metrics.RecordStatusOvergang(string(status))
	}

	return nil
}

// ForceKvittering — аварийный путь оператора: синтезирует успешную квитанцию,
// когда внешняя система заведомо приняла поручение, но квитанция не дошла.
// Обходит обычную корреляцию, поэтому явно логируется и попадает в аудит.
func (s *Service) ForceKvittering(vedtakID domain.VedtakId, utfoertAv domain.NavIdent) error {
	utbetaling, err := s.repo.GetByVedtakID(vedtakID)
	if err != nil {
		return fmt.Errorf("load utbetaling: %w", err)
	}
	if utbetaling.Status.Terminal() {
		return fmt.Errorf("%w: manual kvittering on %s", domain.ErrStatusLaast, utbetaling.Status)
	}

	kvittering := domain.Kvittering{
		VedtakID:    vedtakID,
		MeldingKode: domain.KvitteringOK,
		Beskrivelse: "Manuelt kvittert",
		SystemID:    ManuellSystemID,
	}
	raw, err := s.gateway.EncodeKvittering(kvittering)
	if err != nil {
		return fmt.Errorf("encode manual kvittering: %w", err)
	}

	endret := s.now().UTC()
	if err := s.repo.UpdateKvittering(
		vedtakID, raw,
		kvittering.Beskrivelse, "", kvittering.MeldingKode,
		endret,
	); err != nil {
		return fmt.Errorf("store manual kvittering: %w", err)
	}

	s.appendHendelse(domain.Hendelse{
		VedtakID:  vedtakID,
		Type:      domain.HendelseManuellKvittering,
		Detalj:    fmt.Sprintf("syntetisk kvittering fra %s", ManuellSystemID),
		UtfoertAv: utfoertAv,
		Occurred:  endret,
	})

	s.logger.WithFields(log.Fields{
		"vedtak_id":  vedtakID.String(),
		"utfoert_av": utfoertAv.String(),
	}).Warn("manuell kvittering registrert, normal korrelasjon omgått")
	if s.metrics != nil {
		s.metrics.RecordManuellKvittering()
	}

	return s.ApplyStatus(vedtakID, domain.StatusGodkjent)
}

// Get возвращает сохранённое поручение по версии решения.
func (s *Service) Get(vedtakID domain.VedtakId) (domain.Utbetaling, error) {
	return s.repo.GetByVedtakID(vedtakID)
}

// statusEventMessage строит outbox-событие смены статуса для поручения.
func statusEventMessage(utbetaling domain.Utbetaling, status domain.UtbetalingStatus) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(StatusEvent{
		EventName:   EventUtbetalingOppdatert,
		VedtakID:    utbetaling.VedtakID.String(),
		Status:      string(status),
		Beskrivelse: statusBeskrivelse(utbetaling),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal status event: %w", err)
	}

	return domain.OutboxMessage{
		VedtakID:  utbetaling.VedtakID,
		SakID:     utbetaling.SakID,
		EventType: EventUtbetalingOppdatert,
		Payload:   payload,
	}, nil
}

// statusBeskrivelse строит описание события по полям квитанции поручения.
func statusBeskrivelse(utbetaling domain.Utbetaling) string {
	if utbetaling.KvitteringMeldingKode == domain.KvitteringOK {
		return "Utbetaling OK"
	}
	return strings.TrimSpace(utbetaling.KvitteringMeldingKode + " " + utbetaling.KvitteringBeskrivelse)
}

func (s *Service) appendHendelse(hendelse domain.Hendelse) {
	if s.hendelser == nil {
		return
	}
	if err := s.hendelser.Append(hendelse); err != nil {
		s.logger.WithError(err).WithField("vedtak_id", hendelse.VedtakID.String()).
			Warn("failed to append hendelse")
	}
}
