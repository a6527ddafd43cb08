package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"taskroute/internal/domain"
)

const activityColumns = `id,user_id,task_id,action,entity_type,entity_id,details,ip_address,user_agent,ts`

func scanActivity(rows *sql.Rows) (domain.ActivityLog, error) {
	var a domain.ActivityLog
	var taskID, entityID sql.NullInt64
	var entityType, ip, ua sql.NullString
	var details string
	if err := rows.Scan(&a.ID, &a.UserID, &taskID, &a.Action, &entityType, &entityID, &details, &ip, &ua, &a.Timestamp); err != nil {
		return a, err
	}
	if taskID.Valid {
		v := taskID.Int64
		a.TaskID = &v
	}
	if entityID.Valid {
		v := entityID.Int64
		a.EntityID = &v
	}
	a.EntityType = entityType.String
	a.IPAddress = ip.String
	a.UserAgent = ua.String
	a.Details = map[string]any{}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (s Store) queryActivity(ctx context.Context, query string, args ...any) ([]domain.ActivityLog, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLog
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// TaskHistory returns every entry referencing the task, newest first.
func (s Store) TaskHistory(ctx context.Context, taskID int64, limit int) ([]domain.ActivityLog, error) {
	query, args := paginate(`SELECT `+activityColumns+` FROM activity_log WHERE task_id=? ORDER BY ts DESC, id DESC`, []any{taskID}, limit, 0)
	return s.queryActivity(ctx, query, args...)
}

type ActivityFilter struct {
	UserID string
	Action string
	TaskID *int64
	// Since is an inclusive lower bound in domain.TimeLayout.
	Since  string
	Limit  int
	Offset int
}

func (f ActivityFilter) where() (string, []any) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.TaskID != nil {
		clauses = append(clauses, "task_id=?")
		args = append(args, *f.TaskID)
	}
	if f.Since != "" {
		clauses = append(clauses, "ts>=?")
		args = append(args, f.Since)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// UserActivity returns a user's entries newest first plus the unpaginated
// match count.
func (s Store) UserActivity(ctx context.Context, f ActivityFilter) ([]domain.ActivityLog, int, error) {
	where, args := f.where()
	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query, args := paginate(`SELECT `+activityColumns+` FROM activity_log`+where+` ORDER BY ts DESC, id DESC`, args, f.Limit, f.Offset)
	items, err := s.queryActivity(ctx, query, args...)
	return items, total, err
}

// Summary aggregates a user's activity since a cutoff.
type Summary struct {
	Since           string         `json:"since"`
	TotalActivities int            `json:"total_activities"`
	ByAction        map[string]int `json:"by_action"`
	ByDay           map[string]int `json:"by_day"`
}

func (s Store) Summary(ctx context.Context, userID, since string) (Summary, error) {
	sum := Summary{Since: since, ByAction: map[string]int{}, ByDay: map[string]int{}}
	rows, err := s.DB.QueryContext(ctx, `SELECT action, substr(ts,1,10), COUNT(*) FROM activity_log WHERE user_id=? AND ts>=? GROUP BY action, substr(ts,1,10)`, userID, since)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	for rows.Next() {
		var action, day string
		var n int
		if err := rows.Scan(&action, &day, &n); err != nil {
			return sum, err
		}
		sum.ByAction[action] += n
		sum.ByDay[day] += n
		sum.TotalActivities += n
	}
	return sum, rows.Err()
}
