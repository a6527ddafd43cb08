package repo

import (
	"context"
	"database/sql"

	"taskroute/internal/domain"
)

func (r Repo) InsertStatusHistory(ctx context.Context, tx *sql.Tx, h domain.StatusHistory) (int64, error) {
	var from any
	if h.StatusFrom != nil {
		from = string(*h.StatusFrom)
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_status_history(task_id,user_id,status_from,status_to,action,comments,metadata_json,ts) VALUES (?,?,?,?,?,?,?,?)`,
		h.TaskID, h.UserID, from, h.StatusTo, h.Action, nullable(h.Comments), nullableStringPtr(h.MetadataJSON), h.Timestamp)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListStatusHistory returns the canonical timeline of a task, oldest first.
func (r Repo) ListStatusHistory(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.StatusHistory, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,task_id,user_id,status_from,status_to,action,COALESCE(comments,''),metadata_json,ts
FROM task_status_history WHERE task_id=? ORDER BY ts ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		var from, metadata sql.NullString
		if err := rows.Scan(&h.ID, &h.TaskID, &h.UserID, &from, &h.StatusTo, &h.Action, &h.Comments, &metadata, &h.Timestamp); err != nil {
			return nil, err
		}
		if from.Valid {
			s := domain.Status(from.String)
			h.StatusFrom = &s
		}
		h.MetadataJSON = stringPtr(metadata)
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_attachments(task_id,uploaded_by,filename,file_url,file_size,file_type,uploaded_at) VALUES (?,?,?,?,?,?,?)`,
		a.TaskID, a.UploadedBy, a.Filename, a.FileURL, nullableInt64Ptr(a.FileSize), nullable(a.FileType), a.UploadedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListAttachments(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.Attachment, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,task_id,uploaded_by,filename,file_url,file_size,COALESCE(file_type,''),uploaded_at
FROM task_attachments WHERE task_id=? ORDER BY uploaded_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var size sql.NullInt64
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UploadedBy, &a.Filename, &a.FileURL, &size, &a.FileType, &a.UploadedAt); err != nil {
			return nil, err
		}
		if size.Valid {
			v := size.Int64
			a.FileSize = &v
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
