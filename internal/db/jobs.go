package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/bobarin/reelsmith/internal/models"
)

const recordTimeout = 5 * time.Second

// RecordJobRun stores a terminal job record. Re-recording the same job
// overwrites the earlier row.
func (db *DB) RecordJobRun(ctx context.Context, rec models.JobRecord) error {
	row, err := newJobRunRow(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_runs (
			id, kind, stage, error_message, artifact_path, artifact_url,
			providers, record, started_at, finished_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			error_message = EXCLUDED.error_message,
			artifact_path = EXCLUDED.artifact_path,
			artifact_url = EXCLUDED.artifact_url,
			providers = EXCLUDED.providers,
			record = EXCLUDED.record,
			finished_at = EXCLUDED.finished_at
	`

	_, err = db.ExecContext(
		ctx, query,
		rec.ID, rec.Kind, rec.Stage, rec.Error, row.artifactPath, row.artifactURL,
		pq.Array(row.providers), row.record, rec.StartedAt, rec.FinishedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job run %s: %w", rec.ID, err)
	}
	return nil
}

type jobRunRow struct {
	artifactPath *string
	artifactURL  *string
	providers    []string
	record       models.JSONB
}

func newJobRunRow(rec models.JobRecord) (jobRunRow, error) {
	var row jobRunRow

	data, err := json.Marshal(rec)
	if err != nil {
		return row, fmt.Errorf("failed to marshal job %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(data, &row.record); err != nil {
		return row, fmt.Errorf("failed to convert job %s: %w", rec.ID, err)
	}

	if rec.Result != nil {
		path := rec.Result.Path
		row.artifactPath = &path
		row.artifactURL = rec.Result.URL
		for _, p := range rec.Result.Provenance {
			row.providers = append(row.providers, string(p))
		}
	}
	return row, nil
}

// ---------------------------------------------------------------------------
// Audit listener
// ---------------------------------------------------------------------------

// JobRunRecorder persists terminal job records. *DB implements it.
type JobRunRecorder interface {
	RecordJobRun(ctx context.Context, rec models.JobRecord) error
}

// AuditListener writes every finished job to the audit log. Failures are
// logged and never affect the job.
type AuditListener struct {
	recorder JobRunRecorder
}

func NewAuditListener(recorder JobRunRecorder) *AuditListener {
	return &AuditListener{recorder: recorder}
}

func (l *AuditListener) JobStarted(rec models.JobRecord) {}

func (l *AuditListener) JobFinished(rec models.JobRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := l.recorder.RecordJobRun(ctx, rec); err != nil {
		log.Printf("[DB] Failed to audit job %s: %v", rec.ID, err)
	}
}
