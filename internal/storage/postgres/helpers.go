package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time
	return &ts
}
