package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type utbetalingRepository struct {
	db *sql.DB
}

// NewUtbetalingRepository создаёт PostgreSQL-реализацию UtbetalingRepository.
func NewUtbetalingRepository(store *Store) domain.UtbetalingRepository {
	return &utbetalingRepository{db: store.DB()}
}

func (r *utbetalingRepository) Create(utbetaling domain.Utbetaling) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Создание поручений одного дела сериализуется на границе хранилища:
	// вычисление цепочки замещений не должно перемежаться с параллельной
	// вставкой по тому же делу. Разные дела независимы.
	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, utbetaling.SakID.String(),
	); err != nil {
		return fmt.Errorf("acquire sak lock: %w", err)
	}

	var eksisterende string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM utbetalinger WHERE vedtak_id = $1`, utbetaling.VedtakID.String(),
	).Scan(&eksisterende)
	if err == nil {
		err = domain.ErrUtbetalingFinnes
		return err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check vedtak exists: %w", err)
	}
	err = nil

	// Между чтением истории дела и этой вставкой другое поручение могло стать
	// принятым хвостом. Под взятой блокировкой хвост перечитывается и
	// сверяется с якорем цепочки нового поручения.
	if err = r.validateKjede(ctx, tx, utbetaling); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO utbetalinger (
			id, sak_id, behandling_id, vedtak_id, status,
			opprettet, endret, avstemmingsnoekkel,
			stoenadsmottaker, saksbehandler, attestant,
			vedtak, oppdragsmelding, kvitteringsmelding,
			kvittering_beskrivelse, kvittering_feilkode, kvittering_melding_kode
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		utbetaling.ID, utbetaling.SakID.String(), utbetaling.BehandlingID.String(),
		utbetaling.VedtakID.String(), string(utbetaling.Status),
		utbetaling.Opprettet, utbetaling.Endret, utbetaling.Avstemmingsnoekkel,
		utbetaling.Stoenadsmottaker.String(), utbetaling.Saksbehandler.String(),
		utbetaling.Attestant.String(),
		utbetaling.Vedtak, utbetaling.Oppdragsmelding, utbetaling.Kvitteringsmelding,
		utbetaling.KvitteringBeskrivelse, utbetaling.KvitteringFeilkode,
		utbetaling.KvitteringMeldingKode,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrUtbetalingFinnes
			return err
		}
		return fmt.Errorf("insert utbetaling: %w", err)
	}

	for i, linje := range utbetaling.Linjer {
		var erstatter sql.NullString
		if linje.ErstatterID != nil {
			erstatter = sql.NullString{String: linje.ErstatterID.String(), Valid: true}
		}
		var til sql.NullTime
		if linje.Til != nil {
			til = sql.NullTime{Time: *linje.Til, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO utbetalingslinjer (
				id, utbetaling_id, sak_id, opprettet, fra, til, beloep, erstatter_id, endring, rekkefoelge
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			linje.ID.String(), utbetaling.ID, linje.SakID.String(), linje.Opprettet,
			linje.Fra, til, linje.Beloep, erstatter, string(linje.Endring), i,
		); err != nil {
			return fmt.Errorf("insert utbetalingslinje: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create utbetaling: %w", err)
	}

	return nil
}

// validateKjede сверяет якорь цепочки замещений (erstatter_id первой строки)
// с актуальным принятым хвостом дела. Выполняется внутри транзакции Create
// под advisory lock дела.
func (r *utbetalingRepository) validateKjede(ctx context.Context, tx *sql.Tx, utbetaling domain.Utbetaling) error {
	if len(utbetaling.Linjer) == 0 {
		return nil
	}

	var hale sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT l.id
		FROM utbetalingslinjer l
		JOIN utbetalinger u ON u.id = l.utbetaling_id
		WHERE l.sak_id = $1
		  AND u.status IN ($2, $3)
		ORDER BY u.opprettet DESC, u.id DESC, l.rekkefoelge DESC
		LIMIT 1
	`, utbetaling.SakID.String(),
		string(domain.StatusGodkjent), string(domain.StatusGodkjentMedFeil),
	).Scan(&hale)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read accepted chain tail: %w", err)
	}

	anker := utbetaling.Linjer[0].ErstatterID
	if !hale.Valid {
		if anker == nil {
			return nil
		}
		return fmt.Errorf("%w: anchor %s but sak has no accepted tail", domain.ErrKjedeUtdatert, *anker)
	}
	if anker == nil || anker.String() != hale.String {
		return fmt.Errorf("%w: accepted tail is %s", domain.ErrKjedeUtdatert, hale.String)
	}
	return nil
}

const utbetalingColumns = `
	id, sak_id, behandling_id, vedtak_id, status,
	opprettet, endret, avstemmingsnoekkel,
	stoenadsmottaker, saksbehandler, attestant,
	vedtak, oppdragsmelding, kvitteringsmelding,
	kvittering_beskrivelse, kvittering_feilkode, kvittering_melding_kode`

func (r *utbetalingRepository) GetByVedtakID(vedtakID domain.VedtakId) (domain.Utbetaling, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+utbetalingColumns+` FROM utbetalinger WHERE vedtak_id = $1`,
		vedtakID.String(),
	)
	utbetaling, err := scanUtbetaling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Utbetaling{}, domain.ErrUtbetalingIkkeFunnet
		}
		return domain.Utbetaling{}, fmt.Errorf("select utbetaling: %w", err)
	}

	if utbetaling.Linjer, err = r.loadLinjer(ctx, utbetaling.ID); err != nil {
		return domain.Utbetaling{}, err
	}
	return utbetaling, nil
}

func (r *utbetalingRepository) ListBySak(sakID domain.SakId) ([]domain.Utbetaling, error) {
	return r.list(`
		SELECT `+utbetalingColumns+`
		FROM utbetalinger
		WHERE sak_id = $1
		ORDER BY opprettet ASC, id ASC
	`, sakID.String())
}

func (r *utbetalingRepository) ListByWindow(fra, til time.Time) ([]domain.Utbetaling, error) {
	return r.list(`
		SELECT `+utbetalingColumns+`
		FROM utbetalinger
		WHERE avstemmingsnoekkel >= $1
		  AND avstemmingsnoekkel < $2
		ORDER BY avstemmingsnoekkel ASC, id ASC
	`, fra, til)
}

func (r *utbetalingRepository) list(query string, args ...any) ([]domain.Utbetaling, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list utbetalinger: %w", err)
	}
	defer rows.Close()

	utbetalinger := make([]domain.Utbetaling, 0)
	for rows.Next() {
		utbetaling, err := scanUtbetaling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan utbetaling row: %w", err)
		}
		utbetalinger = append(utbetalinger, utbetaling)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utbetaling rows: %w", err)
	}

	for i := range utbetalinger {
		if utbetalinger[i].Linjer, err = r.loadLinjer(ctx, utbetalinger[i].ID); err != nil {
			return nil, err
		}
	}

	return utbetalinger, nil
}

func (r *utbetalingRepository) UpdateStatus(vedtakID domain.VedtakId, status domain.UtbetalingStatus, endret time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE utbetalinger
		SET status = $2,
		    endret = $3
		WHERE vedtak_id = $1
	`, vedtakID.String(), string(status), endret)
	if err != nil {
		return fmt.Errorf("update utbetaling status: %w", err)
	}

	return requireOneRow(res, "status update", vedtakID)
}

// UpdateStatusWithEvent фиксирует смену статуса и постановку доменного события
// в одной транзакции: реестр не может оказаться в конечном статусе без
// события для подписчиков.
func (r *utbetalingRepository) UpdateStatusWithEvent(vedtakID domain.VedtakId, status domain.UtbetalingStatus, endret time.Time, event domain.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE utbetalinger
		SET status = $2,
		    endret = $3
		WHERE vedtak_id = $1
	`, vedtakID.String(), string(status), endret)
	if err != nil {
		return fmt.Errorf("update utbetaling status: %w", err)
	}
	if err = requireOneRow(res, "status update", vedtakID); err != nil {
		return err
	}

	if _, err = insertEvent(ctx, tx, event, endret); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit status update with event: %w", err)
	}

	return nil
}

func (r *utbetalingRepository) UpdateKvittering(vedtakID domain.VedtakId, melding []byte, beskrivelse, feilkode, meldingKode string, endret time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE utbetalinger
		SET kvitteringsmelding = $2,
		    kvittering_beskrivelse = $3,
		    kvittering_feilkode = $4,
		    kvittering_melding_kode = $5,
		    endret = $6
		WHERE vedtak_id = $1
	`, vedtakID.String(), melding, beskrivelse, feilkode, meldingKode, endret)
	if err != nil {
		return fmt.Errorf("update kvittering: %w", err)
	}

	return requireOneRow(res, "kvittering update", vedtakID)
}

// requireOneRow проверяет, что обновление затронуло ровно одну строку.
// Любое другое число — рассогласование реестра и сервиса, не no-op.
func requireOneRow(res sql.Result, operation string, vedtakID domain.VedtakId) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", operation, err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: %s for vedtak %s affected %d rows",
			domain.ErrInkonsistentLedger, operation, vedtakID, affected)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUtbetaling(row rowScanner) (domain.Utbetaling, error) {
	var (
		utbetaling                         domain.Utbetaling
		sakID, behandlingID, vedtakID      string
		status, mottaker, saksbeh, attest  string
		beskrivelse, feilkode, meldingKode string
	)
	if err := row.Scan(
		&utbetaling.ID, &sakID, &behandlingID, &vedtakID, &status,
		&utbetaling.Opprettet, &utbetaling.Endret, &utbetaling.Avstemmingsnoekkel,
		&mottaker, &saksbeh, &attest,
		&utbetaling.Vedtak, &utbetaling.Oppdragsmelding, &utbetaling.Kvitteringsmelding,
		&beskrivelse, &feilkode, &meldingKode,
	); err != nil {
		return domain.Utbetaling{}, err
	}

	utbetaling.SakID = domain.SakId(sakID)
	utbetaling.BehandlingID = domain.BehandlingId(behandlingID)
	utbetaling.VedtakID = domain.VedtakId(vedtakID)
	utbetaling.Status = domain.UtbetalingStatus(status)
	utbetaling.Stoenadsmottaker = domain.Foedselsnummer(mottaker)
	utbetaling.Saksbehandler = domain.NavIdent(saksbeh)
	utbetaling.Attestant = domain.NavIdent(attest)
	utbetaling.KvitteringBeskrivelse = beskrivelse
	utbetaling.KvitteringFeilkode = feilkode
	utbetaling.KvitteringMeldingKode = meldingKode
	return utbetaling, nil
}

func (r *utbetalingRepository) loadLinjer(ctx context.Context, utbetalingID string) ([]domain.Utbetalingslinje, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sak_id, opprettet, fra, til, beloep, erstatter_id, endring
		FROM utbetalingslinjer
		WHERE utbetaling_id = $1
		ORDER BY rekkefoelge ASC
	`, utbetalingID)
	if err != nil {
		return nil, fmt.Errorf("load utbetalingslinjer: %w", err)
	}
	defer rows.Close()

	linjer := make([]domain.Utbetalingslinje, 0)
	for rows.Next() {
		var (
			linje     domain.Utbetalingslinje
			id, sakID string
			til       sql.NullTime
			erstatter sql.NullString
			endring   string
		)
		if err := rows.Scan(&id, &sakID, &linje.Opprettet, &linje.Fra, &til, &linje.Beloep, &erstatter, &endring); err != nil {
			return nil, fmt.Errorf("scan utbetalingslinje: %w", err)
		}
		linje.ID = domain.UtbetalingslinjeId(id)
		linje.SakID = domain.SakId(sakID)
		linje.UtbetalingID = utbetalingID
		linje.Endring = domain.Linjeendring(endring)
		if til.Valid {
			t := til.Time
			linje.Til = &t
		}
		if erstatter.Valid {
			e := domain.UtbetalingslinjeId(erstatter.String)
			linje.ErstatterID = &e
		}
		linjer = append(linjer, linje)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate utbetalingslinjer: %w", err)
	}

	return linjer, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.UtbetalingRepository = (*utbetalingRepository)(nil)
