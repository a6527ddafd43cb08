package archive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskroute/internal/archive"
	"taskroute/internal/db"
	"taskroute/internal/domain"
	"taskroute/internal/migrate"
)

func newStore(t *testing.T) archive.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()}, db.Archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, migrate.Archive); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return archive.Store{DB: conn, Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}}
}

func sampleSnapshot(id int64, creator string, participants ...string) archive.Snapshot {
	task := domain.Task{ID: id, TaskNumber: "TASK-2024-0001", Title: "Quarterly report", CreatorID: creator, Status: domain.StatusCompleted, Priority: domain.PriorityMedium}
	ps := []domain.Participant{{UserID: creator, Role: domain.RoleCreator, IsRead: true, IsActive: true}}
	for _, p := range participants {
		ps = append(ps, domain.Participant{UserID: p, Role: domain.RoleAssignee, IsActive: true})
	}
	return archive.NewSnapshot(task, ps, nil, nil)
}

func TestArchiveTaskWritesSnapshotAndActivity(t *testing.T) {
	s := newStore(t)
	ctx := archive.WithProvenance(context.Background(), archive.Provenance{IPAddress: "10.0.0.1", UserAgent: "test"})
	row, err := s.ArchiveTask(ctx, sampleSnapshot(7, "alice", "bob"), domain.ReasonCompleted, "alice")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, snap, err := s.GetArchived(ctx, row.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OriginalTaskID != 7 || got.CreatorID != "alice" || got.ArchiveReason != domain.ReasonCompleted {
		t.Fatalf("unexpected archive row: %+v", got)
	}
	if !snap.HasParticipant("bob") || snap.HasParticipant("mallory") {
		t.Fatalf("snapshot participants wrong: %+v", snap.Participants)
	}
	history, err := s.TaskHistory(ctx, 7, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Action != "task_archived_completed" {
		t.Fatalf("expected one archival entry, got %+v", history)
	}
	if history[0].IPAddress != "10.0.0.1" || history[0].UserAgent != "test" {
		t.Fatalf("provenance not recorded: %+v", history[0])
	}
	if history[0].Details["task_title"] != "Quarterly report" {
		t.Fatalf("details missing title: %+v", history[0].Details)
	}
}

func TestListArchivedFiltersByCreatorInQuery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i, creator := range []string{"alice", "bob", "alice", "alice"} {
		reason := domain.ReasonDeleted
		if i == 3 {
			reason = domain.ReasonCancelled
		}
		if _, err := s.ArchiveTask(ctx, sampleSnapshot(int64(i+1), creator), reason, creator); err != nil {
			t.Fatalf("archive %d: %v", i, err)
		}
	}
	items, total, err := s.ListArchived(ctx, archive.ArchiveFilter{CreatorID: "alice", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	if items[0].OriginalTaskID != 4 || items[1].OriginalTaskID != 3 {
		t.Fatalf("expected newest first, got %d,%d", items[0].OriginalTaskID, items[1].OriginalTaskID)
	}
	items, total, err = s.ListArchived(ctx, archive.ArchiveFilter{CreatorID: "alice", Reason: domain.ReasonDeleted})
	if err != nil {
		t.Fatalf("list by reason: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("reason filter: total=%d len=%d", total, len(items))
	}
}

func TestPurgeArchivedLogsAndRemoves(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	row, err := s.ArchiveTask(ctx, sampleSnapshot(3, "alice"), domain.ReasonDeleted, "alice")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := s.PurgeArchived(ctx, row.ID, "alice"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, _, err := s.GetArchived(ctx, row.ID); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected not found after purge, got %v", err)
	}
	if err := s.PurgeArchived(ctx, row.ID, "alice"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("second purge: %v", err)
	}
	items, total, err := s.UserActivity(ctx, archive.ActivityFilter{UserID: "alice", Action: "archived_task_permanently_deleted"})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if total != 1 || len(items) != 1 || *items[0].TaskID != 3 {
		t.Fatalf("purge entry missing: %+v", items)
	}
}

func TestSummaryGroupsByActionAndDay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, action := range []string{"task_created", "task_created", "status_changed"} {
		if _, err := s.LogActivity(ctx, archive.Entry{UserID: "alice", Action: action}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if _, err := s.LogActivity(ctx, archive.Entry{UserID: "bob", Action: "task_created"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	sum, err := s.Summary(ctx, "alice", "2024-01-01T00:00:00.000000Z")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalActivities != 3 || sum.ByAction["task_created"] != 2 || sum.ByDay["2024-03-01"] != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestLogActivityRejectsMissingFields(t *testing.T) {
	s := newStore(t)
	if _, err := s.LogActivity(context.Background(), archive.Entry{Action: "x"}); err == nil {
		t.Fatalf("expected error for missing user")
	}
}
