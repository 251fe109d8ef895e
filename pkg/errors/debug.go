package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres codes that clear up on their own once the competing transaction
// finishes.
var transientPGCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement_timeout)
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Retryable: Retryable(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := pgDetails(err); ok {
		d.PGCode = pg.PGCode
		d.PGConstraint = pg.PGConstraint
		d.PGTable = pg.PGTable
		d.PGColumn = pg.PGColumn
		d.PGDetail = pg.PGDetail
		d.PGMessage = pg.PGMessage
	}
	return d
}

// Retryable reports whether repeating the failed operation may succeed: a
// typed error whose code is retryable, a transient Postgres failure, or a
// busy sqlite database.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if pg, ok := pgDetails(err); ok && transientPGCodes[pg.PGCode] {
		return true
	}
	if strings.Contains(err.Error(), "database is locked") {
		return true
	}
	if te := As(err); te != nil {
		return MetadataFor(te.Code()).Retryable
	}
	return false
}

// pgDetails reads the driver error from either the pgx or the lib/pq chain.
func pgDetails(err error) (ErrorDump, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return ErrorDump{
			PGCode:       pgxErr.Code,
			PGConstraint: pgxErr.ConstraintName,
			PGTable:      pgxErr.TableName,
			PGColumn:     pgxErr.ColumnName,
			PGDetail:     pgxErr.Detail,
			PGMessage:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return ErrorDump{
			PGCode:       string(pqErr.Code),
			PGConstraint: pqErr.Constraint,
			PGTable:      pqErr.Table,
			PGColumn:     pqErr.Column,
			PGDetail:     pqErr.Detail,
			PGMessage:    pqErr.Message,
		}, true
	}
	return ErrorDump{}, false
}
