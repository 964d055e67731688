package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"fintechx-ops/core/batch"
)

// BatchArchiveStore persists finished batch jobs. Save satisfies
// batch.ArchiveSink, so the engine writes through here when a job reaches
// a terminal status.
type BatchArchiveStore interface {
	Save(ctx context.Context, job *batch.Job) error
	Get(ctx context.Context, jobID string) (*batch.Job, error)
	List(ctx context.Context, limit int) ([]ArchivedBatch, error)
	ListByStatus(ctx context.Context, status batch.Status, limit int) ([]ArchivedBatch, error)
}

// ArchivedBatch is the summary row; the full job lives in the payload
// column and comes back through Get.
type ArchivedBatch struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Type            batch.Type   `json:"batch_type"`
	Status          batch.Status `json:"status"`
	TotalItems      int          `json:"total_items"`
	ProcessedItems  int          `json:"processed_items"`
	SuccessfulItems int          `json:"successful_items"`
	FailedItems     int          `json:"failed_items"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	ArchivedAt      time.Time    `json:"archived_at"`
}

type batchArchiveStore struct {
	db *sql.DB
}

func NewBatchArchiveStore(db *sql.DB) BatchArchiveStore {
	return &batchArchiveStore{db: db}
}

func (s *batchArchiveStore) Save(ctx context.Context, job *batch.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_archive(id, name, batch_type, status, total_items, processed_items, successful_items, failed_items, payload, created_at, completed_at, archived_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			processed_items=excluded.processed_items,
			successful_items=excluded.successful_items,
			failed_items=excluded.failed_items,
			payload=excluded.payload,
			completed_at=excluded.completed_at,
			archived_at=excluded.archived_at`,
		job.ID, job.Name, string(job.Type), string(job.Status),
		job.TotalItems, job.ProcessedItems, job.SuccessfulItems, job.FailedItems,
		string(payload), job.CreatedAt, nullableTime(job.CompletedAt), time.Now().UTC())
	return err
}

func (s *batchArchiveStore) Get(ctx context.Context, jobID string) (*batch.Job, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM batch_archive WHERE id=?`, jobID).Scan(&payload)
	if err != nil {
		return nil, err
	}
	var job batch.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *batchArchiveStore) List(ctx context.Context, limit int) ([]ArchivedBatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, batch_type, status, total_items, processed_items, successful_items, failed_items, created_at, completed_at, archived_at
		FROM batch_archive ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanArchiveRows(rows)
}

func (s *batchArchiveStore) ListByStatus(ctx context.Context, status batch.Status, limit int) ([]ArchivedBatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, batch_type, status, total_items, processed_items, successful_items, failed_items, created_at, completed_at, archived_at
		FROM batch_archive WHERE status=? ORDER BY archived_at DESC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return scanArchiveRows(rows)
}

func scanArchiveRows(rows *sql.Rows) ([]ArchivedBatch, error) {
	defer rows.Close()
	var res []ArchivedBatch
	for rows.Next() {
		var (
			r           ArchivedBatch
			batchType   string
			status      string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Name, &batchType, &status, &r.TotalItems, &r.ProcessedItems, &r.SuccessfulItems, &r.FailedItems, &r.CreatedAt, &completedAt, &r.ArchivedAt); err != nil {
			return nil, err
		}
		r.Type = batch.Type(batchType)
		r.Status = batch.Status(status)
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
