package app

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/messaging/kafka"
	utbsvc "github.com/vladislavdragonenkov/utbetaling/internal/service/utbetaling"
)

// KlassifiserKvittering переводит код квитанции внешней системы в конечный
// статус поручения. Неизвестный код трактуется как FEILET.
func KlassifiserKvittering(meldingKode string) domain.UtbetalingStatus {
	switch meldingKode {
	case "00":
		return domain.StatusGodkjent
	case "04":
		return domain.StatusGodkjentMedFeil
	case "08":
		return domain.StatusAvvist
	default:
		return domain.StatusFeilet
	}
}

// newVedtakHandler строит обработчик входящих решений о выплате.
func newVedtakHandler(svc *utbsvc.Service, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		vedtak, err := kafka.ParseVedtak(message)
		if err != nil {
			return err
		}

		if _, err := svc.Submit(vedtak); err != nil {
			logger.WithError(err).WithField("vedtak_id", vedtak.VedtakID.String()).
				Warn("vedtak processing failed")
			return fmt.Errorf("submit vedtak %s: %w", vedtak.VedtakID, err)
		}
		return nil
	}
}

// newKvitteringHandler строит обработчик квитанций внешней системы:
// сохранение квитанции, классификация исхода, перевод статуса.
func newKvitteringHandler(svc *utbsvc.Service, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		kvittering, err := svc.HandleKvittering(message.Value)
		if err != nil {
			return err
		}

		status := KlassifiserKvittering(kvittering.MeldingKode)
		if !kvittering.OK() {
			logger.WithFields(log.Fields{
				"vedtak_id":    kvittering.VedtakID.String(),
				"melding_kode": kvittering.MeldingKode,
				"feilkode":     kvittering.Feilkode,
				"beskrivelse":  kvittering.Beskrivelse,
			}).Warn("kvittering med feil mottatt")
		}

		if err := svc.ApplyStatus(kvittering.VedtakID, status); err != nil {
			return fmt.Errorf("apply status %s for vedtak %s: %w", status, kvittering.VedtakID, err)
		}
		return nil
	}
}
