package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "pipelines_name_key"}
	if !isUniqueViolation(pgErr) {
		t.Error("unique violation not recognized")
	}
	if !isUniqueViolation(fmt.Errorf("insert pipeline: %w", pgErr)) {
		t.Error("wrapped unique violation not recognized")
	}

	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation must not be recognized")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Error("plain error must not be recognized")
	}
	if isUniqueViolation(nil) {
		t.Error("nil must not be recognized")
	}
}
