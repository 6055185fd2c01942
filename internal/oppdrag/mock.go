package oppdrag

import (
	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

// MockGateway — конфигурируемая заглушка OppdragGateway для тестов.
// Send кодирует настоящий wire-формат, но ничего не передаёт.
type MockGateway struct {
	SendErr   error
	DecodeErr error
	// SendHook, если задан, вызывается перед кодированием поручения.
	SendHook func(utbetaling domain.Utbetaling)

	SendCalls int
	Sent      [][]byte
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Send кодирует поручение и запоминает payload; при настроенной ошибке
// ничего не «отправляется».
func (m *MockGateway) Send(utbetaling domain.Utbetaling) ([]byte, error) {
	m.SendCalls++
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	if m.SendHook != nil {
		m.SendHook(utbetaling)
	}
	payload, err := Encode(utbetaling)
	if err != nil {
		return nil, err
	}
	m.Sent = append(m.Sent, payload)
	return payload, nil
}

// DecodeKvittering разбирает квитанцию настоящим кодеком.
func (m *MockGateway) DecodeKvittering(raw []byte) (domain.Kvittering, error) {
	if m.DecodeErr != nil {
		return domain.Kvittering{}, m.DecodeErr
	}
	g := Gateway{}
	return g.DecodeKvittering(raw)
}

// EncodeKvittering кодирует квитанцию настоящим кодеком.
func (m *MockGateway) EncodeKvittering(kvittering domain.Kvittering) ([]byte, error) {
	g := Gateway{}
	return g.EncodeKvittering(kvittering)
}

var _ domain.OppdragGateway = (*MockGateway)(nil)
