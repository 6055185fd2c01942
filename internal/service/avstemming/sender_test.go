package avstemming_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/utbetaling/internal/service/avstemming"
)

// fakeTransport запоминает отправленные payload и умеет падать на n-м сообщении.
type fakeTransport struct {
	sent    [][]byte
	keys    []string
	failAt  int
	failErr error
}

func (f *fakeTransport) PublishRaw(_, key string, payload []byte) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return f.failErr
	}
	f.sent = append(f.sent, payload)
	f.keys = append(f.keys, key)
	return nil
}

func TestSendBatch_Rekkefoelge(t *testing.T) {
	transport := &fakeTransport{}
	sender := avstemming.NewSender(transport, "oppdrag.avstemming", nil)

	meldinger := avstemming.BuildMeldinger("batch-1", alleStatuser(), vindusFra, vindusTil, avstemming.DefaultConfig())
	if err := sender.SendBatch("batch-1", meldinger); err != nil {
		t.Fatalf("send batch failed: %v", err)
	}

	if len(transport.sent) != len(meldinger) {
		t.Fatalf("expected %d sent messages, got %d", len(meldinger), len(transport.sent))
	}
	if !strings.Contains(string(transport.sent[0]), "START") {
		t.Fatalf("first payload must be START, got %s", transport.sent[0])
	}
	if !strings.Contains(string(transport.sent[len(transport.sent)-1]), "AVSL") {
		t.Fatalf("last payload must be AVSL, got %s", transport.sent[len(transport.sent)-1])
	}
	for i, key := range transport.keys {
		if key != "batch-1" {
			t.Fatalf("message %d sent with key %q, expected batch id", i, key)
		}
	}
}

func TestSendBatch_FeilAvbryter(t *testing.T) {
	transport := &fakeTransport{failAt: 2, failErr: errors.New("broker down")}
	sender := avstemming.NewSender(transport, "oppdrag.avstemming", nil)

	meldinger := avstemming.BuildMeldinger("batch-1", alleStatuser(), vindusFra, vindusTil, avstemming.DefaultConfig())
	err := sender.SendBatch("batch-1", meldinger)
	if err == nil {
		t.Fatal("expected error when transport fails")
	}
	if len(transport.sent) != 1 {
		t.Fatalf("sending must stop at the failed message, got %d sent", len(transport.sent))
	}
}
