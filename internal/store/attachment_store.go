package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type attachmentRow struct {
	Seq        int64     `db:"seq"`
	ID         string    `db:"id"`
	Identity   string    `db:"identity"`
	Folder     string    `db:"folder"`
	ExternalID string    `db:"external_id"`
	Filenames  string    `db:"filenames"`
	CreatedAt  time.Time `db:"created_at"`
}

// EnqueueAttachments records a save request for a message's attachments.
func (t *txn) EnqueueAttachments(
	ctx context.Context, job AttachmentJob,
) (bool, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Filenames == nil {
		job.Filenames = []string{}
	}

	names, err := json.Marshal(job.Filenames)
	if err != nil {
		return false, fmt.Errorf("marshaling attachment names: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO attachment_jobs (
			id, identity, folder, external_id, filenames, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity, folder, external_id) DO NOTHING`,
		job.ID, job.Identity, job.Folder, job.ExternalID,
		string(names), job.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("enqueueing attachments of %s: %w",
			job.ExternalID, err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListAttachmentJobs returns pending jobs oldest first.
func (t *txn) ListAttachmentJobs(ctx context.Context) ([]AttachmentJob, error) {
	var rows []attachmentRow
	if err := t.tx.SelectContext(ctx, &rows,
		"SELECT * FROM attachment_jobs ORDER BY seq"); err != nil {

		return nil, fmt.Errorf("querying attachment jobs: %w", err)
	}

	jobs := make([]AttachmentJob, 0, len(rows))
	for _, r := range rows {
		job := AttachmentJob{
			ID:         r.ID,
			Identity:   r.Identity,
			Folder:     r.Folder,
			ExternalID: r.ExternalID,
			CreatedAt:  r.CreatedAt,
		}
		if err := json.Unmarshal([]byte(r.Filenames), &job.Filenames); err != nil {
			return nil, fmt.Errorf("unmarshaling attachment names of %s: %w", r.ID, err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// CompleteAttachmentJob removes a finished job.
func (t *txn) CompleteAttachmentJob(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx,
		"DELETE FROM attachment_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("completing attachment job %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("attachment job %s: %w", id, ErrNotFound)
	}
	return nil
}
