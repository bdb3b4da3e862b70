package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// PgErrandRepository persists errands together with their owned external
// tags and time measure ledger.
//
// Schema:
//
//	errands(id uuid pk, namespace, municipality_id, errand_number, title,
//	        description, status, previous_status, suspended_from,
//	        suspended_to, assigned_user_id, stakeholder_name,
//	        stakeholder_contact, touched_at, created_at, updated_at,
//	        unique (namespace, municipality_id, errand_number))
//	errand_external_tags(errand_id fk, key, value, pk (errand_id, key))
//	errand_time_measures(id uuid pk, errand_id fk, status, administrator,
//	        start_time, stop_time nullable)
type PgErrandRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgErrandRepository(db DB, logger *slog.Logger) *PgErrandRepository {
	return &PgErrandRepository{db: db, logger: logger}
}

const errandColumns = `id, namespace, municipality_id, errand_number, title, description,
	status, previous_status, suspended_from, suspended_to, assigned_user_id,
	stakeholder_name, stakeholder_contact, touched_at, created_at, updated_at`

func (r *PgErrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Errand, error) {
	query := `SELECT ` + errandColumns + ` FROM errands WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PgErrandRepository) GetByErrandNumber(ctx context.Context, namespace, municipalityID, errandNumber string) (*domain.Errand, error) {
	query := `SELECT ` + errandColumns + ` FROM errands
		WHERE namespace = $1 AND municipality_id = $2 AND errand_number = $3`
	return r.getOne(ctx, query, namespace, municipalityID, errandNumber)
}

func (r *PgErrandRepository) GetByExternalTag(ctx context.Context, namespace, municipalityID, key, value string) (*domain.Errand, error) {
	query := `SELECT ` + prefixedErrandColumns("e") + ` FROM errands e
		JOIN errand_external_tags t ON t.errand_id = e.id
		WHERE e.namespace = $1 AND e.municipality_id = $2 AND lower(t.key) = lower($3) AND t.value = $4`
	return r.getOne(ctx, query, namespace, municipalityID, key, value)
}

func (r *PgErrandRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM errands WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking errand existence", "error", err, "errand_id", id)
		return false, err
	}
	return exists, nil
}

func (r *PgErrandRepository) Create(ctx context.Context, errand *domain.Errand) error {
	query := `
		INSERT INTO errands (` + errandColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.Exec(ctx, query,
		errand.ID, errand.Namespace, errand.MunicipalityID, errand.ErrandNumber,
		errand.Title, errand.Description, errand.Status, nullableStatus(errand.PreviousStatus),
		errand.SuspendedFrom, errand.SuspendedTo, errand.AssignedUserID,
		errand.StakeholderName, errand.StakeholderContact,
		errand.TouchedAt, errand.CreatedAt, errand.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating errand", "error", err, "errand_number", errand.ErrandNumber)
		return err
	}
	if err := r.syncTags(ctx, errand); err != nil {
		return err
	}
	if err := r.syncTimeMeasures(ctx, errand); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Errand created", "errand_id", errand.ID, "errand_number", errand.ErrandNumber)
	return nil
}

func (r *PgErrandRepository) Update(ctx context.Context, errand *domain.Errand) error {
	query := `
		UPDATE errands
		SET title = $1, description = $2, status = $3, previous_status = $4,
		    suspended_from = $5, suspended_to = $6, assigned_user_id = $7,
		    stakeholder_name = $8, stakeholder_contact = $9, touched_at = $10, updated_at = $11
		WHERE id = $12
	`
	errand.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, query,
		errand.Title, errand.Description, errand.Status, nullableStatus(errand.PreviousStatus),
		errand.SuspendedFrom, errand.SuspendedTo, errand.AssignedUserID,
		errand.StakeholderName, errand.StakeholderContact, errand.TouchedAt, errand.UpdatedAt,
		errand.ID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating errand", "error", err, "errand_id", errand.ID)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Errand not found for update", "errand_id", errand.ID)
		return domain.ErrNotFound
	}
	if err := r.syncTags(ctx, errand); err != nil {
		return err
	}
	return r.syncTimeMeasures(ctx, errand)
}

func (r *PgErrandRepository) FindExpiredSuspensions(ctx context.Context, namespace, municipalityID string, now time.Time) ([]*domain.Errand, error) {
	query := `SELECT ` + errandColumns + ` FROM errands
		WHERE namespace = $1 AND municipality_id = $2 AND suspended_to IS NOT NULL AND suspended_to < $3
		ORDER BY suspended_to ASC`
	rows, err := r.db.Query(ctx, query, namespace, municipalityID, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying expired suspensions", "error", err)
		return nil, err
	}
	defer rows.Close()

	var errands []*domain.Errand
	for rows.Next() {
		errand, err := scanErrand(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning errand row", "error", err)
			return nil, err
		}
		errands = append(errands, errand)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, errand := range errands {
		if err := r.loadOwned(ctx, errand); err != nil {
			return nil, err
		}
	}
	return errands, nil
}

func (r *PgErrandRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Errand, error) {
	errand, err := scanErrand(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error loading errand", "error", err)
		return nil, err
	}
	if err := r.loadOwned(ctx, errand); err != nil {
		return nil, err
	}
	return errand, nil
}

func (r *PgErrandRepository) loadOwned(ctx context.Context, errand *domain.Errand) error {
	tagRows, err := r.db.Query(ctx,
		`SELECT key, value FROM errand_external_tags WHERE errand_id = $1`, errand.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error loading external tags", "error", err, "errand_id", errand.ID)
		return err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag domain.ExternalTag
		if err := tagRows.Scan(&tag.Key, &tag.Value); err != nil {
			return err
		}
		errand.ExternalTags = append(errand.ExternalTags, tag)
	}
	if err := tagRows.Err(); err != nil {
		return err
	}

	measureRows, err := r.db.Query(ctx,
		`SELECT id, status, administrator, start_time, stop_time
		 FROM errand_time_measures WHERE errand_id = $1 ORDER BY start_time ASC`, errand.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error loading time measures", "error", err, "errand_id", errand.ID)
		return err
	}
	defer measureRows.Close()
	for measureRows.Next() {
		var entry domain.TimeMeasureEntry
		if err := measureRows.Scan(&entry.ID, &entry.Status, &entry.Administrator, &entry.StartTime, &entry.StopTime); err != nil {
			return err
		}
		errand.TimeMeasures = append(errand.TimeMeasures, entry)
	}
	return measureRows.Err()
}

// syncTimeMeasures upserts ledger entries: newly appended entries are
// inserted, entries whose stop time was set are closed. Entries are never
// deleted, the ledger is append-only.
func (r *PgErrandRepository) syncTimeMeasures(ctx context.Context, errand *domain.Errand) error {
	query := `
		INSERT INTO errand_time_measures (id, errand_id, status, administrator, start_time, stop_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET stop_time = EXCLUDED.stop_time
	`
	for i := range errand.TimeMeasures {
		entry := &errand.TimeMeasures[i]
		if _, err := r.db.Exec(ctx, query,
			entry.ID, errand.ID, entry.Status, entry.Administrator, entry.StartTime, entry.StopTime,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error upserting time measure entry", "error", err, "errand_id", errand.ID)
			return err
		}
	}
	return nil
}

func (r *PgErrandRepository) syncTags(ctx context.Context, errand *domain.Errand) error {
	query := `
		INSERT INTO errand_external_tags (errand_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (errand_id, key) DO UPDATE SET value = EXCLUDED.value
	`
	for _, tag := range errand.ExternalTags {
		if _, err := r.db.Exec(ctx, query, errand.ID, tag.Key, tag.Value); err != nil {
			r.logger.ErrorContext(ctx, "Error upserting external tag", "error", err, "errand_id", errand.ID, "key", tag.Key)
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanErrand(row rowScanner) (*domain.Errand, error) {
	errand := &domain.Errand{}
	var previousStatus *string
	err := row.Scan(
		&errand.ID, &errand.Namespace, &errand.MunicipalityID, &errand.ErrandNumber,
		&errand.Title, &errand.Description, &errand.Status, &previousStatus,
		&errand.SuspendedFrom, &errand.SuspendedTo, &errand.AssignedUserID,
		&errand.StakeholderName, &errand.StakeholderContact,
		&errand.TouchedAt, &errand.CreatedAt, &errand.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if previousStatus != nil {
		errand.PreviousStatus = domain.Status(*previousStatus)
	}
	return errand, nil
}

func nullableStatus(s domain.Status) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func prefixedErrandColumns(alias string) string {
	return alias + `.id, ` + alias + `.namespace, ` + alias + `.municipality_id, ` + alias + `.errand_number, ` +
		alias + `.title, ` + alias + `.description, ` + alias + `.status, ` + alias + `.previous_status, ` +
		alias + `.suspended_from, ` + alias + `.suspended_to, ` + alias + `.assigned_user_id, ` +
		alias + `.stakeholder_name, ` + alias + `.stakeholder_contact, ` +
		alias + `.touched_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}
