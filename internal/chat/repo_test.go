package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openRepoDB(t *testing.T) *Repo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepo(db)
}

func seedMessage(t *testing.T, r *Repo, sender, receiver uint64, content string, at time.Time, agentType string, important bool) *Message {
	t.Helper()
	m := &Message{SenderID: sender, ReceiverID: receiver, Content: content, CreatedAt: at}
	if agentType != "" {
		m.AgentType = &agentType
		m.IsImportant = &important
	}
	if err := r.InsertMessage(context.Background(), m); err != nil {
		t.Fatalf("insert %q: %v", content, err)
	}
	return m
}

func TestListRecentDesc_ScopesAndOrders(t *testing.T) {
	r := openRepoDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, r, 42, 1, "first", base, "", false)
	seedMessage(t, r, 1, 42, "second", base.Add(time.Minute), "", false)
	seedMessage(t, r, 42, 1, "third", base.Add(2*time.Minute), "", false)
	// Another user's conversation with the same coach stays invisible.
	seedMessage(t, r, 99, 1, "intruder", base.Add(3*time.Minute), "", false)

	msgs, err := r.ListRecentDesc(ctx, 42, 1, 10)
	if err != nil {
		t.Fatalf("ListRecentDesc: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Content != "third" || msgs[2].Content != "first" {
		t.Fatalf("wrong order: %q .. %q", msgs[0].Content, msgs[2].Content)
	}

	limited, err := r.ListRecentDesc(ctx, 42, 1, 2)
	if err != nil {
		t.Fatalf("ListRecentDesc limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Content != "third" {
		t.Fatalf("limit not applied from the newest end: %+v", limited)
	}
}

func TestListImportantBetween(t *testing.T) {
	r := openRepoDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, r, 42, 1, "old important", base, "Training", true)
	seedMessage(t, r, 42, 1, "unimportant", base.Add(time.Hour), "Training", false)
	seedMessage(t, r, 42, 1, "recent important", base.Add(2*time.Hour), "Clinical", true)

	msgs, err := r.ListImportantBetween(ctx, 42, 1, base.Add(-time.Hour), base.Add(90*time.Minute), 5)
	if err != nil {
		t.Fatalf("ListImportantBetween: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "old important" {
		t.Fatalf("got %+v, want only the in-window important turn", msgs)
	}
}

func TestListTopicBefore(t *testing.T) {
	r := openRepoDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, r, 42, 1, "sleep talk", base, "Sleep", false)
	seedMessage(t, r, 42, 1, "training talk", base.Add(time.Minute), "Training", false)
	seedMessage(t, r, 1, 42, "coach training reply", base.Add(2*time.Minute), "Training", false)
	seedMessage(t, r, 42, 1, "too new", base.Add(time.Hour), "Training", false)

	msgs, err := r.ListTopicBefore(ctx, 42, 1, "Training", base.Add(30*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListTopicBefore: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	for _, m := range msgs {
		if *m.AgentType != "Training" {
			t.Fatalf("wrong topic in %+v", m)
		}
	}
}

func TestPatchClassification(t *testing.T) {
	r := openRepoDB(t)
	ctx := context.Background()

	m := seedMessage(t, r, 42, 1, "my knee hurts", time.Now().UTC(), "", false)
	if err := r.PatchClassification(ctx, m.ID, true, "Clinical"); err != nil {
		t.Fatalf("PatchClassification: %v", err)
	}

	var got Message
	if err := r.db.First(&got, m.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.IsImportant == nil || !*got.IsImportant {
		t.Fatal("importance not patched")
	}
	if got.AgentType == nil || *got.AgentType != "Clinical" {
		t.Fatalf("agent not patched: %v", got.AgentType)
	}
}
