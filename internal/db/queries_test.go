package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/prompt"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestPrompt creates a prompt with default values for testing.
func newTestPrompt(id string) *prompt.Prompt {
	now := time.Now().Unix()
	return &prompt.Prompt{
		ID:           id,
		Topic:        "Topic " + id,
		Body:         "Body",
		Instructions: "Instructions",
		Model:        "gpt-5-mini",
		Tags:         []string{"docs"},
		Positive:     []keyword.Record{{RemoteID: "k1", Word: "clear", Weight: 5, Source: keyword.SourceManual}},
		Negative:     []keyword.Record{{Word: "jargon", Weight: 2}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func stringPtr(s string) *string {
	return &s
}

func TestInsertAndGetPrompt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	p := newTestPrompt("01ABC123")
	p.TaskID = stringPtr("01TASK")
	if err := InsertPrompt(ctx, db, p); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}

	got, err := GetPrompt(ctx, db, "01ABC123", false)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}

	if got.Topic != p.Topic || got.Body != p.Body || got.Model != p.Model {
		t.Errorf("content mismatch: got %+v", got)
	}
	if got.Status != prompt.StatusDraft {
		t.Errorf("Status = %q, want draft", got.Status)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "docs" {
		t.Errorf("Tags = %v, want [docs]", got.Tags)
	}
	if len(got.Positive) != 1 || got.Positive[0].RemoteID != "k1" || got.Positive[0].Weight != 5 {
		t.Errorf("Positive = %+v", got.Positive)
	}
	if len(got.Negative) != 1 || got.Negative[0].Word != "jargon" {
		t.Errorf("Negative = %+v", got.Negative)
	}
	if got.TaskID == nil || *got.TaskID != "01TASK" {
		t.Errorf("TaskID = %v, want 01TASK", got.TaskID)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", got.DeletedAt)
	}
}

func TestInsertPrompt_EmptyCollections(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	p := newTestPrompt("01EMPTY")
	p.Tags = nil
	p.Positive = nil
	p.Negative = nil
	if err := InsertPrompt(ctx, db, p); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}

	got, err := GetPrompt(ctx, db, "01EMPTY", false)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.Tags != nil {
		t.Errorf("Tags = %v, want nil", got.Tags)
	}
	if got.Positive == nil || len(got.Positive) != 0 {
		t.Errorf("Positive = %#v, want empty non-nil", got.Positive)
	}
}

func TestGetPrompt_NotFound(t *testing.T) {
	_, err := GetPrompt(context.Background(), openTestDB(t), "nonexistent", false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetPrompt should return ErrNotFound, got: %v", err)
	}
}

func TestUpdatePrompt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	p := newTestPrompt("01UPD")
	p.UpdatedAt = 1000
	if err := InsertPrompt(ctx, db, p); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}

	p.Body = "New body"
	p.Status = prompt.StatusPublished
	p.Positive = append(p.Positive, keyword.Record{Word: "concise", Weight: 4})
	if err := UpdatePrompt(ctx, db, p); err != nil {
		t.Fatalf("UpdatePrompt failed: %v", err)
	}
	if p.Revision != 2 {
		t.Errorf("Revision = %d, want 2", p.Revision)
	}
	if p.UpdatedAt <= 1000 {
		t.Errorf("UpdatedAt not bumped: %d", p.UpdatedAt)
	}

	got, err := GetPrompt(ctx, db, "01UPD", false)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.Body != "New body" || got.Status != prompt.StatusPublished || len(got.Positive) != 2 {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.Revision != 2 {
		t.Errorf("stored Revision = %d, want 2", got.Revision)
	}
}

func TestUpdatePrompt_NotFound(t *testing.T) {
	err := UpdatePrompt(context.Background(), openTestDB(t), newTestPrompt("missing"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdatePrompt should return ErrNotFound, got: %v", err)
	}
}

func TestSoftDeletePrompt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := InsertPrompt(ctx, db, newTestPrompt("01DEL")); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}
	if err := SoftDeletePrompt(ctx, db, "01DEL"); err != nil {
		t.Fatalf("SoftDeletePrompt failed: %v", err)
	}

	if _, err := GetPrompt(ctx, db, "01DEL", false); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("deleted prompt should be hidden, got: %v", err)
	}
	got, err := GetPrompt(ctx, db, "01DEL", true)
	if err != nil {
		t.Fatalf("GetPrompt(includeDeleted) failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt should be set")
	}

	if err := SoftDeletePrompt(ctx, db, "01DEL"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete should return ErrNotFound, got: %v", err)
	}
	if err := UpdatePrompt(ctx, db, got); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("update of deleted prompt should return ErrNotFound, got: %v", err)
	}
}

func TestListPrompts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		p := newTestPrompt(fmt.Sprintf("01AAA00%d", i))
		p.UpdatedAt = int64(1000 + i)
		if i%2 == 0 {
			p.Status = prompt.StatusPublished
		}
		if err := InsertPrompt(ctx, db, p); err != nil {
			t.Fatalf("InsertPrompt failed: %v", err)
		}
	}
	if err := SoftDeletePrompt(ctx, db, "01AAA004"); err != nil {
		t.Fatalf("SoftDeletePrompt failed: %v", err)
	}

	summaries, total, err := ListPrompts(ctx, db, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if total != 4 || len(summaries) != 4 {
		t.Fatalf("total=%d len=%d, want 4/4", total, len(summaries))
	}
	if summaries[0].ID != "01AAA003" {
		t.Errorf("first ID = %q, want most recent 01AAA003", summaries[0].ID)
	}
	if summaries[0].PositiveCount != 1 || summaries[0].NegativeCount != 1 {
		t.Errorf("counts = %d/%d", summaries[0].PositiveCount, summaries[0].NegativeCount)
	}

	published := prompt.StatusPublished
	summaries, total, err = ListPrompts(ctx, db, ListFilter{Status: &published}, 10, 0)
	if err != nil {
		t.Fatalf("ListPrompts(status) failed: %v", err)
	}
	if total != 2 || len(summaries) != 2 {
		t.Errorf("published total=%d len=%d, want 2/2", total, len(summaries))
	}

	_, total, err = ListPrompts(ctx, db, ListFilter{IncludeDeleted: true}, 10, 0)
	if err != nil {
		t.Fatalf("ListPrompts(includeDeleted) failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total with deleted = %d, want 5", total)
	}

	page, total, err := ListPrompts(ctx, db, ListFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("ListPrompts(page) failed: %v", err)
	}
	if total != 4 || len(page) != 2 || page[0].ID != "01AAA001" {
		t.Errorf("page = %+v (total %d)", page, total)
	}
}

func TestPurgeDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, id := range []string{"01P1", "01P2", "01P3"} {
		if err := InsertPrompt(ctx, db, newTestPrompt(id)); err != nil {
			t.Fatalf("InsertPrompt failed: %v", err)
		}
	}
	for _, id := range []string{"01P1", "01P2"} {
		if err := SoftDeletePrompt(ctx, db, id); err != nil {
			t.Fatalf("SoftDeletePrompt failed: %v", err)
		}
	}
	// Backdate one deletion.
	old := time.Now().Add(-10 * 24 * time.Hour).Unix()
	if _, err := db.Exec("UPDATE prompts SET deleted_at = ? WHERE id = ?", old, "01P1"); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	days := 7
	n, err := PurgeDeleted(ctx, db, &days)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	n, err = PurgeDeleted(ctx, db, nil)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	if _, err := GetPrompt(ctx, db, "01P3", false); err != nil {
		t.Errorf("active prompt should survive purge: %v", err)
	}
}
