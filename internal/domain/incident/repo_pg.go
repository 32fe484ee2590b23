package incident

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitesafe/sitesafe/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var incidentCols = []string{
	"id", "status",
	"notifier_name", "notifier_role", "notifier_phone", "notifier_email", "notifier_relationship",
	"worker_id", "worker_name", "occupation", "employer_id",
	"site_id", "site_name", "site_location",
	"date_of_injury", "time_of_injury", "date_reported",
	"injury_type", "severity", "classification", "body_part", "body_side",
	"description", "mechanism", "witness_name",
	"treatment_type", "treatment_provider", "treatment_details", "referred_to",
	"actions", "case_notes", "call_transcript", "document_refs", "cost_estimate",
	"archived_by", "archived_at", "deleted_by", "deleted_at",
	"created_at", "updated_at",
}

func scanIncident(row pgx.Row) (*Incident, error) {
	var inc Incident
	err := row.Scan(
		&inc.ID, &inc.Status,
		&inc.NotifierName, &inc.NotifierRole, &inc.NotifierPhone, &inc.NotifierEmail, &inc.NotifierRelationship,
		&inc.WorkerID, &inc.WorkerName, &inc.Occupation, &inc.EmployerID,
		&inc.SiteID, &inc.SiteName, &inc.SiteLocation,
		&inc.DateOfInjury, &inc.TimeOfInjury, &inc.DateReported,
		&inc.InjuryType, &inc.Severity, &inc.Classification, &inc.BodyPart, &inc.BodySide,
		&inc.Description, &inc.Mechanism, &inc.WitnessName,
		&inc.TreatmentType, &inc.TreatmentProvider, &inc.TreatmentDetails, &inc.ReferredTo,
		&inc.Actions, &inc.CaseNotes, &inc.CallTranscript, &inc.DocumentRefs, &inc.CostEstimate,
		&inc.ArchivedBy, &inc.ArchivedAt, &inc.DeletedBy, &inc.DeletedAt,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (r *RepoPG) Create(ctx context.Context, inc *Incident) error {
	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.Status == "" {
		inc.Status = StatusActive
	}
	q, args, err := psql.Insert("incidents").
		Columns(
			"id", "status",
			"notifier_name", "notifier_role", "notifier_phone", "notifier_email", "notifier_relationship",
			"worker_id", "worker_name", "occupation", "employer_id",
			"site_id", "site_name", "site_location",
			"date_of_injury", "time_of_injury", "date_reported",
			"injury_type", "severity", "classification", "body_part", "body_side",
			"description", "mechanism", "witness_name",
			"treatment_type", "treatment_provider", "treatment_details", "referred_to",
			"actions", "case_notes", "call_transcript", "document_refs", "cost_estimate",
		).
		Values(
			inc.ID, inc.Status,
			inc.NotifierName, inc.NotifierRole, inc.NotifierPhone, inc.NotifierEmail, inc.NotifierRelationship,
			inc.WorkerID, inc.WorkerName, inc.Occupation, inc.EmployerID,
			inc.SiteID, inc.SiteName, inc.SiteLocation,
			inc.DateOfInjury, inc.TimeOfInjury, inc.DateReported,
			inc.InjuryType, inc.Severity, inc.Classification, inc.BodyPart, inc.BodySide,
			inc.Description, inc.Mechanism, inc.WitnessName,
			inc.TreatmentType, inc.TreatmentProvider, inc.TreatmentDetails, inc.ReferredTo,
			inc.Actions, inc.CaseNotes, inc.CallTranscript, inc.DocumentRefs, inc.CostEstimate,
		).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, q, args...).Scan(&inc.CreatedAt, &inc.UpdatedAt)
}

// scopeCond restricts non-admin callers to their own employer's records.
func scopeCond(role, employerScope string) squirrel.Sqlizer {
	if role == "admin" || employerScope == "" {
		return nil
	}
	return squirrel.Eq{"employer_id": employerScope}
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID, role, employerScope string) (*Incident, error) {
	b := psql.Select(incidentCols...).From("incidents").Where(squirrel.Eq{"id": id})
	if cond := scopeCond(role, employerScope); cond != nil {
		b = b.Where(cond)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	inc, err := scanIncident(r.conn(ctx).QueryRow(ctx, q, args...))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return inc, err
}

func (r *RepoPG) UpdateFields(ctx context.Context, id uuid.UUID, role, employerScope string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	b := psql.Update("incidents").Where(squirrel.Eq{"id": id})
	for key, val := range fields {
		col, ok := fieldColumns[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		if listFields[key] {
			b = b.Set(col, asStringList(val))
		} else {
			b = b.Set(col, asString(val))
		}
	}
	b = b.Set("updated_at", squirrel.Expr("now()"))
	if cond := scopeCond(role, employerScope); cond != nil {
		b = b.Where(cond)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// filterQuery builds the shared WHERE clause for List and Count.
func filterQuery(f ListFilter) squirrel.SelectBuilder {
	base := psql.Select().From("incidents")
	if f.Status != "" {
		base = base.Where(squirrel.Eq{"status": f.Status})
	} else {
		base = base.Where(squirrel.NotEq{"status": StatusDeleted})
	}
	if f.SiteID != "" {
		base = base.Where(squirrel.Eq{"site_id": f.SiteID})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		base = base.Where(squirrel.Or{
			squirrel.ILike{"worker_name": like},
			squirrel.ILike{"site_name": like},
			squirrel.ILike{"description": like},
		})
	}
	if cond := scopeCond(f.Role, f.EmployerScope); cond != nil {
		base = base.Where(cond)
	}
	return base
}

func (r *RepoPG) Count(ctx context.Context, f ListFilter) (int, error) {
	q, args, err := filterQuery(f).Columns("COUNT(*)").ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *RepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error) {
	base := filterQuery(f)

	countQ, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q, args, err := base.Columns(incidentCols...).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inc)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) Archive(ctx context.Context, id uuid.UUID, actorName string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incidents
		SET status = $2, archived_by = $3, archived_at = now(), updated_at = now()
		WHERE id = $1 AND status <> $4`,
		id, StatusArchived, actorName, StatusDeleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Restore(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incidents
		SET status = $2, archived_by = '', archived_at = NULL, updated_at = now()
		WHERE id = $1 AND status <> $3`,
		id, StatusActive, StatusDeleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SoftDelete(ctx context.Context, id uuid.UUID, actorName string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incidents
		SET status = $2, deleted_by = $3, deleted_at = now(), updated_at = now()
		WHERE id = $1`,
		id, StatusDeleted, actorName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
