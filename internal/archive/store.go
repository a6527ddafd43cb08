package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskroute/internal/domain"
)

var ErrNotFound = errors.New("archive entry not found")

// Store is the append-only archive database: task snapshots plus the global
// activity ledger. It never touches the operational store.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() string {
	if s.Now != nil {
		return domain.FormatTime(s.Now())
	}
	return domain.FormatTime(time.Now())
}

// Details is the free-form structured payload of an activity entry.
type Details map[string]any

// Entry describes one activity to append.
type Entry struct {
	UserID     string
	TaskID     *int64
	Action     string
	EntityType string
	EntityID   *int64
	Details    Details
}

type provenanceKey struct{}

// Provenance is the network origin of the request that caused an entry.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// WithProvenance stamps request origin onto ctx; every entry appended with
// that ctx records it.
func WithProvenance(ctx context.Context, p Provenance) context.Context {
	return context.WithValue(ctx, provenanceKey{}, p)
}

func ProvenanceFrom(ctx context.Context) Provenance {
	p, _ := ctx.Value(provenanceKey{}).(Provenance)
	return p
}

// LogActivity appends one entry in its own transaction.
func (s Store) LogActivity(ctx context.Context, e Entry) (domain.ActivityLog, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActivityLog{}, err
	}
	defer tx.Rollback()
	entry, err := s.append(ctx, tx, e, s.now())
	if err != nil {
		return domain.ActivityLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActivityLog{}, err
	}
	return entry, nil
}

func (s Store) append(ctx context.Context, tx *sql.Tx, e Entry, ts string) (domain.ActivityLog, error) {
	if strings.TrimSpace(e.UserID) == "" {
		return domain.ActivityLog{}, errors.New("activity user_id required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return domain.ActivityLog{}, errors.New("activity action required")
	}
	if e.Details == nil {
		e.Details = Details{}
	}
	data, err := json.Marshal(e.Details)
	if err != nil {
		return domain.ActivityLog{}, fmt.Errorf("marshal activity details: %w", err)
	}
	prov := ProvenanceFrom(ctx)
	res, err := tx.ExecContext(ctx, `INSERT INTO activity_log(user_id,task_id,action,entity_type,entity_id,details,ip_address,user_agent,ts) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.UserID, nullableInt64(e.TaskID), e.Action, nullable(e.EntityType), nullableInt64(e.EntityID), string(data),
		nullable(prov.IPAddress), nullable(prov.UserAgent), ts)
	if err != nil {
		return domain.ActivityLog{}, fmt.Errorf("append activity %s: %w", e.Action, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ActivityLog{}, err
	}
	return domain.ActivityLog{
		ID:         id,
		UserID:     e.UserID,
		TaskID:     e.TaskID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    e.Details,
		IPAddress:  prov.IPAddress,
		UserAgent:  prov.UserAgent,
		Timestamp:  ts,
	}, nil
}

// ArchiveTask writes the snapshot row and the entry describing the archival
// in one archive transaction.
func (s Store) ArchiveTask(ctx context.Context, snap Snapshot, reason domain.ArchiveReason, actorID string) (domain.ArchivedTask, error) {
	if !reason.Valid() {
		return domain.ArchivedTask{}, fmt.Errorf("invalid archive reason %q", reason)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return domain.ArchivedTask{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	ts := s.now()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ArchivedTask{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO archived_tasks(original_task_id,task_number,creator_id,task_data,archived_at,archived_by,archive_reason) VALUES (?,?,?,?,?,?,?)`,
		snap.ID, snap.TaskNumber, snap.CreatorID, string(data), ts, actorID, reason)
	if err != nil {
		return domain.ArchivedTask{}, fmt.Errorf("insert archived task: %w", err)
	}
	archiveID, err := res.LastInsertId()
	if err != nil {
		return domain.ArchivedTask{}, err
	}
	taskID := snap.ID
	if _, err := s.append(ctx, tx, Entry{
		UserID:     actorID,
		TaskID:     &taskID,
		Action:     "task_archived_" + string(reason),
		EntityType: "archived_task",
		EntityID:   &archiveID,
		Details: Details{
			"archive_id":     archiveID,
			"task_number":    snap.TaskNumber,
			"task_title":     snap.Title,
			"archive_reason": string(reason),
			"archived_at":    ts,
		},
	}, ts); err != nil {
		return domain.ArchivedTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ArchivedTask{}, err
	}
	return domain.ArchivedTask{
		ID:             archiveID,
		OriginalTaskID: snap.ID,
		TaskNumber:     snap.TaskNumber,
		CreatorID:      snap.CreatorID,
		TaskData:       string(data),
		ArchivedAt:     ts,
		ArchivedBy:     actorID,
		ArchiveReason:  reason,
	}, nil
}

const archivedColumns = `id,original_task_id,task_number,creator_id,task_data,archived_at,archived_by,archive_reason`

func scanArchived(row interface{ Scan(...any) error }) (domain.ArchivedTask, error) {
	var a domain.ArchivedTask
	err := row.Scan(&a.ID, &a.OriginalTaskID, &a.TaskNumber, &a.CreatorID, &a.TaskData, &a.ArchivedAt, &a.ArchivedBy, &a.ArchiveReason)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// GetArchived returns an archive row with its decoded snapshot.
func (s Store) GetArchived(ctx context.Context, id int64) (domain.ArchivedTask, Snapshot, error) {
	a, err := scanArchived(s.DB.QueryRowContext(ctx, `SELECT `+archivedColumns+` FROM archived_tasks WHERE id=?`, id))
	if err != nil {
		return a, Snapshot{}, err
	}
	snap, err := DecodeSnapshot(a.TaskData)
	return a, snap, err
}

// LatestForTask returns the most recent archive row taken from the given
// operational task id.
func (s Store) LatestForTask(ctx context.Context, taskID int64) (domain.ArchivedTask, Snapshot, error) {
	a, err := scanArchived(s.DB.QueryRowContext(ctx, `SELECT `+archivedColumns+` FROM archived_tasks WHERE original_task_id=? ORDER BY archived_at DESC, id DESC LIMIT 1`, taskID))
	if err != nil {
		return a, Snapshot{}, err
	}
	snap, err := DecodeSnapshot(a.TaskData)
	return a, snap, err
}

type ArchiveFilter struct {
	CreatorID string
	Reason    domain.ArchiveReason
	Limit     int
	Offset    int
}

func (f ArchiveFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.Reason != "" {
		clauses = append(clauses, "archive_reason=?")
		args = append(args, f.Reason)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListArchived returns matching archive rows newest first and the total
// number of matches ignoring pagination.
func (s Store) ListArchived(ctx context.Context, f ArchiveFilter) ([]domain.ArchivedTask, int, error) {
	where, args := f.where()
	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + archivedColumns + ` FROM archived_tasks` + where + ` ORDER BY archived_at DESC, id DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.ArchivedTask
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, a)
	}
	return res, total, rows.Err()
}

// PurgeArchived deletes an archive row and records the purge in the same
// archive transaction.
func (s Store) PurgeArchived(ctx context.Context, id int64, actorID string) error {
	ts := s.now()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	a, err := scanArchived(tx.QueryRowContext(ctx, `SELECT `+archivedColumns+` FROM archived_tasks WHERE id=?`, id))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_tasks WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete archived task: %w", err)
	}
	taskID := a.OriginalTaskID
	if _, err := s.append(ctx, tx, Entry{
		UserID:     actorID,
		TaskID:     &taskID,
		Action:     "archived_task_permanently_deleted",
		EntityType: "archived_task",
		EntityID:   &a.ID,
		Details: Details{
			"archive_id":     a.ID,
			"task_number":    a.TaskNumber,
			"archive_reason": string(a.ArchiveReason),
		},
	}, ts); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping checks that the archive answers queries.
func (s Store) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
