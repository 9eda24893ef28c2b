package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/BartekS5/bulkimport/pkg/database"
	"github.com/BartekS5/bulkimport/pkg/models"
)

const failuresTable = "bulk_import_failures"

var failureColumns = []string{
	"id", "entity_id", "tracker_id", "pipeline_name", "stage",
	"error_class", "message", "source_title", "source_url", "created_at",
}

// SQLFailures records item failures in a relational table.
type SQLFailures struct {
	DB     *sql.DB
	Driver string
	now    func() time.Time
}

func NewSQLFailures(db *sql.DB, driver string) *SQLFailures {
	return &SQLFailures{DB: db, Driver: driver, now: time.Now}
}

// EnsureSchema creates the failures table if it does not exist.
func (s *SQLFailures) EnsureSchema(ctx context.Context) error {
	var ddl string
	if s.Driver == database.DriverPostgres {
		ddl = `CREATE TABLE IF NOT EXISTS ` + failuresTable + ` (
	id VARCHAR(36) PRIMARY KEY,
	entity_id VARCHAR(64) NOT NULL,
	tracker_id VARCHAR(64) NOT NULL,
	pipeline_name VARCHAR(255) NOT NULL,
	stage VARCHAR(32) NOT NULL,
	error_class VARCHAR(255) NOT NULL,
	message TEXT NOT NULL,
	source_title VARCHAR(255),
	source_url VARCHAR(255),
	created_at TIMESTAMPTZ NOT NULL
)`
	} else {
		ddl = `IF OBJECT_ID(N'` + failuresTable + `', N'U') IS NULL
CREATE TABLE ` + failuresTable + ` (
	id VARCHAR(36) PRIMARY KEY,
	entity_id VARCHAR(64) NOT NULL,
	tracker_id VARCHAR(64) NOT NULL,
	pipeline_name NVARCHAR(255) NOT NULL,
	stage VARCHAR(32) NOT NULL,
	error_class NVARCHAR(255) NOT NULL,
	message NVARCHAR(MAX) NOT NULL,
	source_title NVARCHAR(255),
	source_url NVARCHAR(255),
	created_at DATETIME2 NOT NULL
)`
	}
	if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "create failures table")
	}
	return nil
}

func (s *SQLFailures) RecordFailure(ctx context.Context, f models.Failure) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}

	placeholders := make([]string, len(failureColumns))
	for i := range failureColumns {
		placeholders[i] = database.Placeholder(s.Driver, i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		failuresTable, strings.Join(failureColumns, ", "), strings.Join(placeholders, ", "))

	_, err := s.DB.ExecContext(ctx, query,
		f.ID, f.EntityID, f.TrackerID, f.PipelineName, f.Stage,
		f.ErrorClass, f.Message, nullString(f.SourceTitle), nullString(f.SourceURL), f.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert failure for tracker %s", f.TrackerID)
	}
	return nil
}

// ListFailures returns failures for entityID, or all failures when entityID is empty.
func (s *SQLFailures) ListFailures(ctx context.Context, entityID string) ([]models.Failure, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(failureColumns, ", "), failuresTable)
	var args []any
	if entityID != "" {
		query += " WHERE entity_id = " + database.Placeholder(s.Driver, 1)
		args = append(args, entityID)
	}
	query += " ORDER BY created_at"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query failures")
	}
	defer rows.Close()

	var out []models.Failure
	for rows.Next() {
		var (
			f             models.Failure
			title, srcURL sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.EntityID, &f.TrackerID, &f.PipelineName, &f.Stage,
			&f.ErrorClass, &f.Message, &title, &srcURL, &f.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan failure row")
		}
		f.SourceTitle = title.String
		f.SourceURL = srcURL.String
		out = append(out, f)
	}
	return out, errors.Wrap(rows.Err(), "iterate failures")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
