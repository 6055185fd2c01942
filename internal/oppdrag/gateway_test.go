package oppdrag_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/oppdrag"
)

type captureTransport struct {
	topic   string
	key     string
	payload []byte
	err     error
}

func (c *captureTransport) PublishRaw(topic, key string, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.topic = topic
	c.key = key
	c.payload = payload
	return nil
}

func testUtbetaling() domain.Utbetaling {
	noekkel := time.Date(2024, time.March, 10, 8, 30, 15, 123456000, time.UTC)
	til := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	erstatter := domain.UtbetalingslinjeId("linje-old")
	return domain.Utbetaling{
		ID:                 "utb-1",
		SakID:              "sak-1",
		VedtakID:           "vedtak-1",
		Status:             domain.StatusSendt,
		Opprettet:          noekkel,
		Avstemmingsnoekkel: noekkel,
		Stoenadsmottaker:   "12345678901",
		Saksbehandler:      "Z111111",
		Attestant:          "Z222222",
		Linjer: []domain.Utbetalingslinje{
			{
				ID:          "linje-1",
				Opprettet:   noekkel,
				Fra:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
				Til:         &til,
				Beloep:      decimal.NewFromInt(1500),
				SakID:       "sak-1",
				ErstatterID: &erstatter,
			},
			{
				ID:        "linje-2",
				Opprettet: noekkel,
				Fra:       time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
				Beloep:    decimal.NewFromInt(1600),
				SakID:     "sak-1",
				Endring:   domain.LinjeendringOpphoer,
			},
		},
	}
}

func TestFormatNoekkel(t *testing.T) {
	noekkel := time.Date(2024, time.March, 10, 8, 30, 15, 123456000, time.UTC)

	got := oppdrag.FormatNoekkel(noekkel)
	if got != "20240310083015123456" {
		t.Fatalf("expected 20240310083015123456, got %s", got)
	}
	if len(got) != 20 {
		t.Fatalf("noekkel must be fixed width 20, got %d", len(got))
	}
}

func TestGateway_SendEncodesWireFormat(t *testing.T) {
	transport := &captureTransport{}
	gateway := oppdrag.NewGateway(transport, "oppdrag.utbetaling", nil)

	payload, err := gateway.Send(testUtbetaling())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if transport.topic != "oppdrag.utbetaling" {
		t.Fatalf("unexpected topic %s", transport.topic)
	}
	if transport.key != "vedtak-1" {
		t.Fatalf("expected message key vedtak-1, got %s", transport.key)
	}
	if string(payload) != string(transport.payload) {
		t.Fatal("returned payload must match transmitted bytes")
	}

	melding := string(payload)
	for _, want := range []string{
		"<vedtakId>vedtak-1</vedtakId>",
		"<fagsystemId>sak-1</fagsystemId>",
		"<utbetalesTilId>12345678901</utbetalesTilId>",
		"<avstemmingsnoekkel>20240310083015123456</avstemmingsnoekkel>",
		"<datoVedtakFom>2024-01-01</datoVedtakFom>",
		"<datoVedtakTom>2024-02-29</datoVedtakTom>",
		"<refDelytelseId>linje-old</refDelytelseId>",
		"<kodeEndringLinje>OPPHOER</kodeEndringLinje>",
		"<sats>1500</sats>",
	} {
		if !strings.Contains(melding, want) {
			t.Fatalf("wire message missing %s:\n%s", want, melding)
		}
	}
}

func TestGateway_SendTransportFailure(t *testing.T) {
	transport := &captureTransport{err: domain.ErrOverfoering}
	gateway := oppdrag.NewGateway(transport, "oppdrag.utbetaling", nil)

	if _, err := gateway.Send(testUtbetaling()); err == nil {
		t.Fatal("expected error when transport fails")
	}
}

func TestGateway_KvitteringRoundtrip(t *testing.T) {
	gateway := oppdrag.Gateway{}
	original := domain.Kvittering{
		VedtakID:    "vedtak-1",
		MeldingKode: "08",
		Feilkode:    "E-42",
		Beskrivelse: "ukjent mottaker",
		SystemID:    "OS",
	}

	raw, err := gateway.EncodeKvittering(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := gateway.DecodeKvittering(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != original {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", decoded, original)
	}
	if decoded.OK() {
		t.Fatal("kode 08 must not classify as OK")
	}
}

func TestGateway_KvitteringUtenVedtakID(t *testing.T) {
	gateway := oppdrag.Gateway{}

	if _, err := gateway.DecodeKvittering([]byte("<kvittering><systemId>OS</systemId></kvittering>")); err == nil {
		t.Fatal("kvittering without vedtakId cannot be correlated and must fail")
	}
}
