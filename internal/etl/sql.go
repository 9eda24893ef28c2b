package etl

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BartekS5/bulkimport/pkg/database"
	"github.com/BartekS5/bulkimport/pkg/models"
	"github.com/BartekS5/bulkimport/pkg/utils"
)

const defaultBatchSize = 100

// SQLExtractor pages through a table ordered by its id column. The cursor is the row offset.
type SQLExtractor struct {
	DB        *sql.DB
	Config    *models.MappingSchema
	BatchSize int
}

func (s *SQLExtractor) Extract(ctx context.Context, pc *PipelineContext) (*ExtractedData, error) {
	cursor, err := pc.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	offset, err := utils.ParseOffset(cursor)
	if err != nil {
		return nil, err
	}

	size := s.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		s.Config.SQLTable, s.Config.IDStrategy.SQLField, offset, size)

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyConnError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, classifyConnError(err)
	}

	var opts []PageOption
	if len(records) == size {
		opts = append(opts, WithNextPage(strconv.FormatInt(offset+int64(len(records)), 10)))
	}
	if offset == 0 {
		var total int64
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.Config.SQLTable)
		if err := s.DB.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
			return nil, classifyConnError(err)
		}
		opts = append(opts, WithTotalCount(total))
	}

	return NewExtractedData(records, opts...), nil
}

func scanRows(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(map[string]interface{}, len(cols))
		for i, colName := range cols {
			if b, ok := columns[i].([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = columns[i]
			}
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SQLLoader upserts one row per record: UPDATE when the id exists, INSERT otherwise.
type SQLLoader struct {
	DB     *sql.DB
	Config *models.MappingSchema
	Driver string
}

func (l *SQLLoader) Load(ctx context.Context, _ *PipelineContext, record any) error {
	row, err := asDocument(record)
	if err != nil {
		return err
	}

	idVal, ok := row[l.Config.IDStrategy.SQLField]
	if !ok || idVal == nil {
		return &ValidationError{Field: l.Config.IDStrategy.SQLField, Reason: "missing required id"}
	}

	cols := make([]string, 0, len(l.Config.Fields))
	for _, f := range l.Config.Fields {
		if _, exists := row[f.SQLColumn]; exists {
			cols = append(cols, f.SQLColumn)
		}
	}
	sort.Strings(cols)

	var exists int
	checkQuery := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		l.Config.SQLTable, l.Config.IDStrategy.SQLField, database.Placeholder(l.Driver, 1))
	err = l.DB.QueryRowContext(ctx, checkQuery, idVal).Scan(&exists)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return l.insertRow(ctx, row, cols, idVal)
	case err == nil:
		return l.updateRow(ctx, row, cols, idVal)
	default:
		return classifyConnError(errors.Wrap(err, "check row existence"))
	}
}

func (l *SQLLoader) insertRow(ctx context.Context, row map[string]interface{}, cols []string, idVal interface{}) error {
	colNames := append([]string{l.Config.IDStrategy.SQLField}, cols...)
	placeholders := make([]string, 0, len(colNames))
	args := make([]interface{}, 0, len(colNames))

	args = append(args, idVal)
	placeholders = append(placeholders, database.Placeholder(l.Driver, 1))
	for _, col := range cols {
		args = append(args, row[col])
		placeholders = append(placeholders, database.Placeholder(l.Driver, len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.Config.SQLTable, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return classifyConnError(errors.Wrapf(err, "insert %v", idVal))
	}
	return nil
}

func (l *SQLLoader) updateRow(ctx context.Context, row map[string]interface{}, cols []string, idVal interface{}) error {
	if len(cols) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, row[col])
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", col, database.Placeholder(l.Driver, len(args))))
	}

	args = append(args, idVal)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		l.Config.SQLTable, strings.Join(setClauses, ", "), l.Config.IDStrategy.SQLField, database.Placeholder(l.Driver, len(args)))

	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return classifyConnError(errors.Wrapf(err, "update %v", idVal))
	}
	return nil
}

// classifyConnError turns lost connections and timeouts into retriable transport errors.
func classifyConnError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &TransportError{Status: http.StatusServiceUnavailable, Retriable: true, Err: err}
	}
	return err
}
