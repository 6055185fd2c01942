package domain

// Идентификаторы предметной области оформлены как отдельные типы,
// чтобы компилятор не позволял перепутать их между собой.

// SakId идентифицирует дело (sak), в рамках которого ведётся цепочка выплат.
type SakId string

// BehandlingId идентифицирует обработку дела, породившую решение.
type BehandlingId string

// VedtakId идентифицирует версию решения. На одну версию решения
// существует не более одного платёжного поручения.
type VedtakId string

// UtbetalingslinjeId идентифицирует строку платёжного поручения.
type UtbetalingslinjeId string

// Foedselsnummer — национальный идентификатор получателя выплаты.
type Foedselsnummer string

// NavIdent — идентификатор сотрудника (saksbehandler/attestant).
type NavIdent string

func (id SakId) String() string              { return string(id) }
func (id BehandlingId) String() string       { return string(id) }
func (id VedtakId) String() string           { return string(id) }
func (id UtbetalingslinjeId) String() string { return string(id) }
func (id Foedselsnummer) String() string     { return string(id) }
func (id NavIdent) String() string           { return string(id) }
