// Package storage archives original statement uploads, so a finished import
// job keeps the exact bytes it was fed.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatementInfo describes one archived statement file.
type StatementInfo struct {
	JobID      uuid.UUID `json:"job_id"`
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Archive stores and retrieves original statement files, keyed by the import
// job they fed.
type Archive interface {
	SaveStatement(ctx context.Context, userID, jobID uuid.UUID, filename string, data []byte) (*StatementInfo, error)
	ReadStatement(ctx context.Context, userID, jobID uuid.UUID) ([]byte, *StatementInfo, error)
	DeleteStatement(ctx context.Context, userID, jobID uuid.UUID) error
}
