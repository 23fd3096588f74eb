// Package pg stores a copy of the selection table in a Postgres database
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/interface/table"
	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Backend stores the selections
type Backend struct {
	*sql.DB
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError           = "00000"
	connectionFailure = "08006"
	tooManyConnection = "53300"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

func wrapError(err error) error {
	switch pqErrorCode(err) {
	case connectionFailure, tooManyConnection:
		return service.MakeTemporary(err)
	}
	return err
}

// New connects to the database
func New(ctx context.Context, dbConnection string) (*Backend, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("pg.New: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg.New.Ping: %w", wrapError(err))
	}
	return &Backend{DB: db}, nil
}

// createTableQuery returns the query to create a table with a text column per column of the header
func createTableQuery(tableName string, header table.Header) string {
	columns := make([]string, len(header))
	for i, c := range columnNames(header) {
		columns[i] = pq.QuoteIdentifier(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTableName(tableName), strings.Join(columns, ", "))
}

// columnNames returns the names of the columns in the database.
// Postgres rejects empty identifiers: unnamed columns (e.g. a pandas index) are named "Unnamed: <position>".
func columnNames(header table.Header) []string {
	names := make([]string, len(header))
	for i, c := range header {
		if strings.TrimSpace(c) == "" {
			c = fmt.Sprintf("Unnamed: %d", i)
		}
		names[i] = c
	}
	return names
}

// quoteTableName quotes schema.table
func quoteTableName(tableName string) string {
	parts := strings.Split(tableName, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// ReplaceSelections replaces the content of the table by the selections, with the columns of the output table
func (b *Backend) ReplaceSelections(ctx context.Context, tableName string, header table.Header, selections []common.Selection) (err error) {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceSelections.BeginTx: %w", wrapError(err))
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = replaceSelections(ctx, tx, tableName, header, selections); err != nil {
		return fmt.Errorf("ReplaceSelections.%w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ReplaceSelections.Commit: %w", wrapError(err))
	}
	return nil
}

func replaceSelections(ctx context.Context, db pgInterface, tableName string, header table.Header, selections []common.Selection) error {
	out := table.OutputHeader(header)
	if _, err := db.ExecContext(ctx, createTableQuery(tableName, out)); err != nil {
		return fmt.Errorf("CreateTable: %w", wrapError(err))
	}
	if _, err := db.ExecContext(ctx, "TRUNCATE "+quoteTableName(tableName)); err != nil {
		return fmt.Errorf("Truncate: %w", wrapError(err))
	}

	columns := columnNames(out)
	parts := strings.Split(tableName, ".")
	var copyIn string
	if len(parts) == 2 {
		copyIn = pq.CopyInSchema(parts[0], parts[1], columns...)
	} else {
		copyIn = pq.CopyIn(tableName, columns...)
	}
	stmt, err := db.PrepareContext(ctx, copyIn)
	if err != nil {
		return fmt.Errorf("Prepare: %w", wrapError(err))
	}
	defer stmt.Close()
	for _, s := range selections {
		if _, err := stmt.ExecContext(ctx, rowValues(out, header, s)...); err != nil {
			return fmt.Errorf("Copy[%s]: %w", s.DownloadID, wrapError(err))
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("Copy: %w", wrapError(err))
	}
	return nil
}

func rowValues(out, header table.Header, s common.Selection) []interface{} {
	record := table.OutputRecord(out, header, s)
	values := make([]interface{}, len(record))
	for i, v := range record {
		values[i] = v
	}
	return values
}
