package kafka_test

import (
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/messaging/kafka"
)

func TestParseVedtak(t *testing.T) {
	melding := []byte(`{
		"vedtakId": "vedtak-1",
		"behandlingId": "behandling-1",
		"sakId": "sak-1",
		"stoenadsmottaker": "12345678901",
		"saksbehandler": "Z111111",
		"attestant": "Z222222",
		"pensjonTilUtbetaling": [
			{"type": "UTBETALING", "beloep": "1500.50", "fra": "2024-01-01T00:00:00Z", "til": "2024-02-29T00:00:00Z"},
			{"type": "OPPHOER", "beloep": "0", "fra": "2024-03-01T00:00:00Z"}
		]
	}`)

	vedtak, err := kafka.ParseVedtak(&sarama.ConsumerMessage{Value: melding})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if vedtak.VedtakID != "vedtak-1" || vedtak.SakID != "sak-1" {
		t.Fatalf("unexpected identifiers: %+v", vedtak)
	}
	if vedtak.Stoenadsmottaker != "12345678901" {
		t.Fatalf("unexpected stoenadsmottaker %s", vedtak.Stoenadsmottaker)
	}
	if len(vedtak.PensjonTilUtbetaling) != 2 {
		t.Fatalf("expected 2 perioder, got %d", len(vedtak.PensjonTilUtbetaling))
	}

	foerste := vedtak.PensjonTilUtbetaling[0]
	if foerste.Type != domain.PeriodetypeUtbetaling {
		t.Fatalf("unexpected periodetype %s", foerste.Type)
	}
	if foerste.Beloep.String() != "1500.5" {
		t.Fatalf("unexpected beloep %s", foerste.Beloep)
	}
	if !foerste.Fra.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected fra %s", foerste.Fra)
	}
	if foerste.Til == nil || !foerste.Til.Equal(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected til %v", foerste.Til)
	}

	andre := vedtak.PensjonTilUtbetaling[1]
	if andre.Type != domain.PeriodetypeOpphoer {
		t.Fatalf("unexpected periodetype %s", andre.Type)
	}
	if andre.Til != nil {
		t.Fatalf("opphoer uten til must stay nil, got %v", andre.Til)
	}
}

func TestParseVedtak_InvalidJSON(t *testing.T) {
	if _, err := kafka.ParseVedtak(&sarama.ConsumerMessage{Value: []byte("not json")}); err == nil {
		t.Fatal("expected error for malformed message")
	}
}
