package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalArchive implements Archive on the local filesystem: one file per job
// under the user's directory, with a JSON metadata sidecar.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a local filesystem archive rooted at basePath.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// SaveStatement writes the statement bytes and metadata for one import job.
func (a *LocalArchive) SaveStatement(_ context.Context, userID, jobID uuid.UUID, filename string, data []byte) (*StatementInfo, error) {
	userDir := filepath.Join(a.basePath, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	if err := os.WriteFile(a.statementPath(userID, jobID), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write statement: %w", err)
	}

	info := &StatementInfo{
		JobID:      jobID,
		UserID:     userID,
		Name:       sanitizeFilename(filename),
		Size:       int64(len(data)),
		ArchivedAt: time.Now().UTC(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(a.metaPath(userID, jobID), meta, 0o644); err != nil {
		os.Remove(a.statementPath(userID, jobID))
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	return info, nil
}

// ReadStatement returns the archived bytes and metadata for one import job.
func (a *LocalArchive) ReadStatement(_ context.Context, userID, jobID uuid.UUID) ([]byte, *StatementInfo, error) {
	meta, err := os.ReadFile(a.metaPath(userID, jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("statement for job %s not found", jobID)
		}
		return nil, nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info StatementInfo
	if err := json.Unmarshal(meta, &info); err != nil {
		return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	data, err := os.ReadFile(a.statementPath(userID, jobID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read statement: %w", err)
	}
	return data, &info, nil
}

// DeleteStatement removes an archived statement and its metadata.
func (a *LocalArchive) DeleteStatement(_ context.Context, userID, jobID uuid.UUID) error {
	if err := os.Remove(a.statementPath(userID, jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	if err := os.Remove(a.metaPath(userID, jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

func (a *LocalArchive) statementPath(userID, jobID uuid.UUID) string {
	return filepath.Join(a.basePath, userID.String(), jobID.String()+".dat")
}

func (a *LocalArchive) metaPath(userID, jobID uuid.UUID) string {
	return filepath.Join(a.basePath, userID.String(), jobID.String()+".json")
}

// sanitizeFilename strips path separators and other unsafe characters.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
