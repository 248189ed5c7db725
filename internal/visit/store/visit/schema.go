package visit

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the visits table DDL. It is idempotent so a fresh database and a
// restarted server converge on the same shape. The unique constraints back
// the code-collision retry at creation and the one-credential invariant.
const Schema = `
CREATE TABLE IF NOT EXISTS visits (
	id                      UUID PRIMARY KEY,
	code                    TEXT NOT NULL,
	visitor_id              UUID NOT NULL,
	host_id                 UUID,
	building_id             UUID NOT NULL,
	purpose                 TEXT NOT NULL,
	visit_type              TEXT NOT NULL,
	approval_status         TEXT NOT NULL,
	status                  TEXT NOT NULL,
	credential              TEXT NOT NULL,
	credential_expires_at   TIMESTAMPTZ NOT NULL,
	approved_by             UUID,
	approved_by_name        TEXT NOT NULL DEFAULT '',
	approved_at             TIMESTAMPTZ,
	rejection_reason        TEXT NOT NULL DEFAULT '',
	security_notes          TEXT NOT NULL DEFAULT '',
	check_in_time           TIMESTAMPTZ,
	check_out_time          TIMESTAMPTZ,
	check_in_evidence       TEXT NOT NULL DEFAULT '',
	check_out_evidence      TEXT NOT NULL DEFAULT '',
	actual_duration_minutes INTEGER,
	expected_at             TIMESTAMPTZ,
	notified_host           BOOLEAN NOT NULL DEFAULT FALSE,
	notified_admin          BOOLEAN NOT NULL DEFAULT FALSE,
	notified_check_in       BOOLEAN NOT NULL DEFAULT FALSE,
	notified_check_out      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL,

	CONSTRAINT visits_code_key UNIQUE (code),
	CONSTRAINT visits_credential_key UNIQUE (credential)
);

CREATE INDEX IF NOT EXISTS visits_building_created_idx
	ON visits (building_id, created_at DESC);
`

// EnsureSchema applies the visits schema to the given database.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply visits schema: %w", err)
	}
	return nil
}
