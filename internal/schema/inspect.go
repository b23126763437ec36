package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/nlquery/internal/database"
	"github.com/koustreak/nlquery/internal/errs"
	"github.com/koustreak/nlquery/internal/logger"
)

// MySQL and Postgres expose column metadata through information_schema with
// different comment plumbing: MySQL has column_comment inline, Postgres needs
// pg_catalog.col_description.
const (
	mysqlColumnsQuery = `
		SELECT column_name, column_type, is_nullable = 'YES', column_comment
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	postgresColumnsQuery = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       COALESCE(pgd.description, '')
		FROM information_schema.columns c
		LEFT JOIN pg_catalog.pg_statio_all_tables st
		       ON st.schemaname = c.table_schema AND st.relname = c.table_name
		LEFT JOIN pg_catalog.pg_description pgd
		       ON pgd.objoid = st.relid AND pgd.objsubid = c.ordinal_position
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`
)

// Inspector builds TableDescriptors from a live database connection.
type Inspector struct {
	db      database.DB
	dialect database.Dialect
	log     *logger.Logger
}

// NewInspector creates an Inspector for the given connection and dialect.
func NewInspector(db database.DB, dialect database.Dialect, log *logger.Logger) *Inspector {
	if log == nil {
		log = logger.Nop()
	}
	return &Inspector{db: db, dialect: dialect, log: log}
}

// Describe introspects one table and returns its descriptor, including the
// per-column distinct-value samples. Returns a not_found error when the
// table does not exist.
func (i *Inspector) Describe(ctx context.Context, db, table string) (*TableDescriptor, error) {
	exists, err := i.db.TableExists(ctx, db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %s.%s does not exist", db, table))
	}

	desc := &TableDescriptor{Database: db, Table: table}

	q := mysqlColumnsQuery
	if i.dialect == database.DialectPostgres {
		q = postgresColumnsQuery
	}

	rows, err := i.db.Query(ctx, q, db, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var col ColumnSpec
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Comment); err != nil {
			return nil, err
		}
		desc.Columns = append(desc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for idx := range desc.Columns {
		i.sampleColumn(ctx, desc, idx)
	}

	return desc, nil
}

// sampleColumn fills SampleValues and Constrained for one column. A sampling
// failure degrades to an unconstrained column rather than failing the whole
// descriptor — the generator just loses one hint.
func (i *Inspector) sampleColumn(ctx context.Context, desc *TableDescriptor, idx int) {
	col := &desc.Columns[idx]

	q, args, err := database.Select(desc.Database+"."+desc.Table, i.dialect).
		Columns(col.Name).
		Distinct().
		WhereNotNull(col.Name).
		Limit(MaxSampleValues + 1).
		Build()
	if err != nil {
		i.log.With().Str("column", col.Name).Err(err).Logger().Warn("sample query build failed")
		return
	}

	rows, err := i.db.Query(ctx, q, args...)
	if err != nil {
		i.log.With().Str("column", col.Name).Err(err).Logger().Warn("column sampling failed")
		return
	}
	defer rows.Close()

	var vals []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			i.log.With().Str("column", col.Name).Err(err).Logger().Warn("sample scan failed")
			return
		}
		vals = append(vals, formatValue(v))
	}
	if err := rows.Err(); err != nil {
		i.log.With().Str("column", col.Name).Err(err).Logger().Warn("sample iteration failed")
		return
	}

	col.Constrained = len(vals) <= MaxSampleValues
	if len(vals) > MaxSampleValues {
		vals = vals[:MaxSampleValues]
	}
	col.SampleValues = vals
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
