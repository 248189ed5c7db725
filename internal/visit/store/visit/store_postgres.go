package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatepass/internal/visit/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// PostgresStore persists visits in PostgreSQL. Conditional updates take a
// row lock (SELECT ... FOR UPDATE) inside a transaction so validate and
// mutate see a state no concurrent writer can change underneath them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed visit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const visitColumns = `
	id, code, visitor_id, host_id, building_id,
	purpose, visit_type, approval_status, status,
	credential, credential_expires_at,
	approved_by, approved_by_name, approved_at, rejection_reason, security_notes,
	check_in_time, check_out_time, check_in_evidence, check_out_evidence,
	actual_duration_minutes, expected_at,
	notified_host, notified_admin, notified_check_in, notified_check_out,
	created_at, updated_at`

// Create inserts a new visit.
//
// Errors: sentinel.ErrAlreadyUsed when the code or credential collides with
// an existing row, sentinel.ErrConflict when the visit ID already exists.
func (s *PostgresStore) Create(ctx context.Context, v *models.Visit) error {
	query := `
		INSERT INTO visits (` + visitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`
	_, err := s.db.ExecContext(ctx, query, insertArgs(v)...)
	if err != nil {
		return translateInsertErr(err)
	}
	return nil
}

func insertArgs(v *models.Visit) []any {
	return []any{
		uuid.UUID(v.ID),
		normalizeCode(v.Code),
		uuid.UUID(v.VisitorID),
		hostIDArg(v.HostID),
		uuid.UUID(v.BuildingID),
		v.Purpose,
		string(v.VisitType),
		string(v.ApprovalStatus),
		string(v.Status),
		v.Credential,
		v.CredentialExpiresAt,
		actorIDArg(v.ApprovedBy),
		v.ApprovedByName,
		v.ApprovedAt,
		v.RejectionReason,
		v.SecurityNotes,
		v.CheckInTime,
		v.CheckOutTime,
		v.CheckInEvidence,
		v.CheckOutEvidence,
		v.ActualDurationMinutes,
		v.ExpectedAt,
		v.Notifications.Host,
		v.Notifications.Admin,
		v.Notifications.CheckIn,
		v.Notifications.CheckOut,
		v.CreatedAt,
		v.UpdatedAt,
	}
}

func hostIDArg(h *id.HostID) *uuid.UUID {
	if h == nil {
		return nil
	}
	u := uuid.UUID(*h)
	return &u
}

func actorIDArg(a *id.ActorID) *uuid.UUID {
	if a == nil {
		return nil
	}
	u := uuid.UUID(*a)
	return &u
}

// translateInsertErr maps PostgreSQL unique violations onto sentinels. The
// constraint name tells us which uniqueness was violated.
func translateInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		switch {
		case strings.Contains(pqErr.Constraint, "pkey"):
			return fmt.Errorf("visit id: %w", sentinel.ErrConflict)
		case strings.Contains(pqErr.Constraint, "code"):
			return fmt.Errorf("visit code: %w", sentinel.ErrAlreadyUsed)
		case strings.Contains(pqErr.Constraint, "credential"):
			return fmt.Errorf("credential: %w", sentinel.ErrAlreadyUsed)
		default:
			return fmt.Errorf("visit: %w", sentinel.ErrAlreadyUsed)
		}
	}
	return fmt.Errorf("insert visit: %w", err)
}

// FindByID returns the visit or sentinel.ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, visitID id.VisitID) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`
	v, err := scanVisit(s.db.QueryRowContext(ctx, query, uuid.UUID(visitID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visit %s: %w", visitID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find visit by id: %w", err)
	}
	return v, nil
}

// FindByCode returns the visit carrying the human-readable code, or
// sentinel.ErrNotFound.
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE code = $1`
	v, err := scanVisit(s.db.QueryRowContext(ctx, query, normalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visit code %s: %w", code, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find visit by code: %w", err)
	}
	return v, nil
}

// FindByCredential returns the visit bound to the credential token, or
// sentinel.ErrNotFound.
func (s *PostgresStore) FindByCredential(ctx context.Context, token string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE credential = $1`
	v, err := scanVisit(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find visit by credential: %w", err)
	}
	return v, nil
}

// ListByBuilding returns the building's visits matching the filter, newest
// first.
func (s *PostgresStore) ListByBuilding(ctx context.Context, buildingID id.BuildingID, f Filter) ([]*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE building_id = $1`
	args := []any{uuid.UUID(buildingID)}

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ApprovalStatus != "" {
		args = append(args, string(f.ApprovalStatus))
		query += fmt.Sprintf(" AND approval_status = $%d", len(args))
	}
	if f.VisitType != "" {
		args = append(args, string(f.VisitType))
		query += fmt.Sprintf(" AND visit_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	return scanVisits(rows)
}

// Execute runs a conditional update under a row lock. The transaction holds
// FOR UPDATE on the visit row across validate and mutate, so two racing
// Executes serialize on the database and the loser revalidates against the
// committed state.
//
// Errors: sentinel.ErrNotFound when the visit does not exist; otherwise
// whatever validate returned, unwrapped.
func (s *PostgresStore) Execute(ctx context.Context, visitID id.VisitID, validate func(*models.Visit) error, mutate func(*models.Visit)) (*models.Visit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin visit update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1 FOR UPDATE`
	v, err := scanVisit(tx.QueryRowContext(ctx, query, uuid.UUID(visitID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visit %s: %w", visitID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock visit: %w", err)
	}

	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)

	update := `
		UPDATE visits SET
			approval_status = $2, status = $3,
			approved_by = $4, approved_by_name = $5, approved_at = $6,
			rejection_reason = $7, security_notes = $8,
			check_in_time = $9, check_out_time = $10,
			check_in_evidence = $11, check_out_evidence = $12,
			actual_duration_minutes = $13,
			notified_host = $14, notified_admin = $15,
			notified_check_in = $16, notified_check_out = $17,
			updated_at = $18
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		uuid.UUID(v.ID),
		string(v.ApprovalStatus),
		string(v.Status),
		actorIDArg(v.ApprovedBy),
		v.ApprovedByName,
		v.ApprovedAt,
		v.RejectionReason,
		v.SecurityNotes,
		v.CheckInTime,
		v.CheckOutTime,
		v.CheckInEvidence,
		v.CheckOutEvidence,
		v.ActualDurationMinutes,
		v.Notifications.Host,
		v.Notifications.Admin,
		v.Notifications.CheckIn,
		v.Notifications.CheckOut,
		v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit visit update: %w", err)
	}
	return v, nil
}

// Count returns the number of stored visits.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return n, nil
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisit(row rowScanner) (*models.Visit, error) {
	var (
		v           models.Visit
		visitID     uuid.UUID
		visitorID   uuid.UUID
		hostID      uuid.NullUUID
		buildingID  uuid.UUID
		visitType   string
		approval    string
		status      string
		approvedBy  uuid.NullUUID
		approvedAt  sql.NullTime
		checkIn     sql.NullTime
		checkOut    sql.NullTime
		duration    sql.NullInt64
		expectedAt  sql.NullTime
		credExpires time.Time
	)

	err := row.Scan(
		&visitID, &v.Code, &visitorID, &hostID, &buildingID,
		&v.Purpose, &visitType, &approval, &status,
		&v.Credential, &credExpires,
		&approvedBy, &v.ApprovedByName, &approvedAt, &v.RejectionReason, &v.SecurityNotes,
		&checkIn, &checkOut, &v.CheckInEvidence, &v.CheckOutEvidence,
		&duration, &expectedAt,
		&v.Notifications.Host, &v.Notifications.Admin,
		&v.Notifications.CheckIn, &v.Notifications.CheckOut,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.ID = id.VisitID(visitID)
	v.VisitorID = id.VisitorID(visitorID)
	if hostID.Valid {
		h := id.HostID(hostID.UUID)
		v.HostID = &h
	}
	v.BuildingID = id.BuildingID(buildingID)
	v.VisitType = models.VisitType(visitType)
	v.ApprovalStatus = models.ApprovalStatus(approval)
	v.Status = models.VisitStatus(status)
	v.CredentialExpiresAt = credExpires
	if approvedBy.Valid {
		a := id.ActorID(approvedBy.UUID)
		v.ApprovedBy = &a
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		v.ApprovedAt = &t
	}
	if checkIn.Valid {
		t := checkIn.Time
		v.CheckInTime = &t
	}
	if checkOut.Valid {
		t := checkOut.Time
		v.CheckOutTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		v.ActualDurationMinutes = &d
	}
	if expectedAt.Valid {
		t := expectedAt.Time
		v.ExpectedAt = &t
	}
	return &v, nil
}

func scanVisits(rows *sql.Rows) ([]*models.Visit, error) {
	var out []*models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return out, nil
}
