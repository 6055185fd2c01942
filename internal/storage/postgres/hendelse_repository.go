package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

type hendelseRepository struct {
	db *sql.DB
}

// NewHendelseRepository создаёт PostgreSQL-реализацию HendelseRepository.
func NewHendelseRepository(store *Store) domain.HendelseRepository {
	return &hendelseRepository{db: store.DB()}
}

func (r *hendelseRepository) Append(hendelse domain.Hendelse) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if hendelse.Occurred.IsZero() {
		hendelse.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO utbetaling_hendelser (vedtak_id, type, detalj, utfoert_av, occurred)
		VALUES ($1,$2,$3,$4,$5)
	`, hendelse.VedtakID.String(), hendelse.Type, hendelse.Detalj,
		hendelse.UtfoertAv.String(), hendelse.Occurred); err != nil {
		return fmt.Errorf("append hendelse: %w", err)
	}

	return nil
}

func (r *hendelseRepository) List(vedtakID domain.VedtakId) ([]domain.Hendelse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT vedtak_id, type, detalj, utfoert_av, occurred
		FROM utbetaling_hendelser
		WHERE vedtak_id = $1
		ORDER BY occurred ASC, id ASC
	`, vedtakID.String())
	if err != nil {
		return nil, fmt.Errorf("list hendelser: %w", err)
	}
	defer rows.Close()

	hendelser := make([]domain.Hendelse, 0)
	for rows.Next() {
		var (
			hendelse          domain.Hendelse
			vedtak, utfoertAv string
		)
		if err := rows.Scan(&vedtak, &hendelse.Type, &hendelse.Detalj, &utfoertAv, &hendelse.Occurred); err != nil {
			return nil, fmt.Errorf("scan hendelse: %w", err)
		}
		hendelse.VedtakID = domain.VedtakId(vedtak)
		hendelse.UtfoertAv = domain.NavIdent(utfoertAv)
		hendelser = append(hendelser, hendelse)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hendelser: %w", err)
	}

	return hendelser, nil
}

var _ domain.HendelseRepository = (*hendelseRepository)(nil)
