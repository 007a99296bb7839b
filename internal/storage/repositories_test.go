package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famhealth/famhealth/internal/config"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMemberCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewMemberRepository(db)

	m := &Member{Name: "爷爷", Gender: "male", Relation: "grandfather"}
	require.NoError(t, repo.Create(ctx, m))
	require.NotEmpty(t, m.ID)

	got, err := repo.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "爷爷", got.Name)

	members, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, repo.Delete(ctx, m.ID))
	_, err = repo.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, m.ID), ErrNotFound)
}

func TestDocumentLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	docs := NewDocumentRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	d := &Document{MemberID: m.ID, FileName: "exam.pdf", DocType: DocTypePhysicalExam}
	require.NoError(t, docs.Create(ctx, d))
	assert.Equal(t, DocStatusPending, d.Status)

	require.NoError(t, docs.SetStatus(ctx, d.ID, DocStatusProcessing, ""))
	require.NoError(t, docs.SaveResult(ctx, d.ID, "raw text", `{"indicators":[]}`, 120))

	got, err := docs.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DocStatusCompleted, got.Status)
	assert.Equal(t, "raw text", got.RawText)
	assert.Equal(t, 120, got.TokensUsed)
	assert.Empty(t, got.Error)

	require.NoError(t, docs.SetStatus(ctx, d.ID, DocStatusFailed, "all pages failed"))
	got, err = docs.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "all pages failed", got.Error)
}

func TestListForContextPriorityOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	docs := NewDocumentRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	// Inserted in reverse priority order; the query must re-rank them.
	for _, dt := range []string{DocTypeOther, DocTypePrescription, DocTypeLabReport, DocTypePhysicalExam} {
		d := &Document{MemberID: m.ID, FileName: dt + ".pdf", DocType: dt}
		require.NoError(t, docs.Create(ctx, d))
		require.NoError(t, docs.SaveResult(ctx, d.ID, "text", "{}", 1))
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	list, err := docs.ListForContext(ctx, m.ID, since, 30)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, DocTypePhysicalExam, list[0].DocType)
	assert.Equal(t, DocTypeLabReport, list[1].DocType)
	assert.Equal(t, DocTypePrescription, list[2].DocType)
	assert.Equal(t, DocTypeOther, list[3].DocType)
}

func TestListForContextSkipsIncomplete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	docs := NewDocumentRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	pending := &Document{MemberID: m.ID, FileName: "pending.pdf"}
	require.NoError(t, docs.Create(ctx, pending))

	since := time.Now().UTC().Add(-time.Hour)
	list, err := docs.ListForContext(ctx, m.ID, since, 30)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestContextPriorityRanking(t *testing.T) {
	ranked := []string{DocTypePhysicalExam, DocTypeLabReport, DocTypeMedicalRecord, DocTypeImagingReport, DocTypePrescription, DocTypeOther}
	for i := 1; i < len(ranked); i++ {
		assert.Less(t, ContextPriority(ranked[i-1]), ContextPriority(ranked[i]))
	}
	assert.Equal(t, ContextPriority(DocTypeOther), ContextPriority("SOMETHING_NEW"))
}

func TestHealthRecordCreateAndListRecent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	records := NewHealthRecordRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	now := time.Now().UTC()
	old := &HealthRecord{MemberID: m.ID, RecordType: RecordTypeWeight, Value: "70", Unit: "kg", MeasuredAt: now.AddDate(0, -3, 0)}
	require.NoError(t, records.Create(ctx, old))

	recent := &HealthRecord{MemberID: m.ID, RecordType: RecordTypeBloodPressure, Value: "120/80", Unit: "mmHg", MeasuredAt: now.AddDate(0, 0, -1)}
	require.NoError(t, records.Create(ctx, recent))
	require.NotEmpty(t, recent.ID)

	// Window query excludes the three-month-old measurement.
	since := now.AddDate(0, 0, -30)
	list, err := records.ListRecent(ctx, m.ID, since, 30)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recent.ID, list[0].ID)

	// Zero since means no lower bound, newest first.
	list, err = records.ListRecent(ctx, m.ID, time.Time{}, 30)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)
	assert.Equal(t, old.ID, list[1].ID)
}

func TestHealthRecordDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	records := NewHealthRecordRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	rec := &HealthRecord{MemberID: m.ID, Value: "98.6"}
	require.NoError(t, records.Create(ctx, rec))
	assert.Equal(t, RecordTypeOther, rec.RecordType)
	assert.False(t, rec.MeasuredAt.IsZero())
}

func TestHealthRecordDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)
	records := NewHealthRecordRepository(db)

	m := &Member{Name: "test"}
	require.NoError(t, members.Create(ctx, m))

	rec := &HealthRecord{MemberID: m.ID, Value: "1"}
	require.NoError(t, records.Create(ctx, rec))
	require.NoError(t, records.Delete(ctx, rec.ID))
	assert.ErrorIs(t, records.Delete(ctx, rec.ID), ErrNotFound)

	list, err := records.ListRecent(ctx, m.ID, time.Time{}, 30)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChatRecentMessagesWindow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatRepository(db)

	s := &ChatSession{Title: "健康咨询"}
	require.NoError(t, chats.CreateSession(ctx, s))

	for i := 0; i < 25; i++ {
		require.NoError(t, chats.AddMessage(ctx, &ChatMessage{
			SessionID: s.ID,
			Role:      "user",
			Content:   fmt.Sprintf("message %02d", i),
		}))
	}

	msgs, err := chats.RecentMessages(ctx, s.ID, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	assert.Equal(t, "message 05", msgs[0].Content, "oldest surviving message first")
	assert.Equal(t, "message 24", msgs[19].Content, "newest message last")
}

func TestChatSessionDeleteCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatRepository(db)

	s := &ChatSession{Title: "t"}
	require.NoError(t, chats.CreateSession(ctx, s))
	require.NoError(t, chats.AddMessage(ctx, &ChatMessage{SessionID: s.ID, Role: "user", Content: "hi"}))

	require.NoError(t, chats.DeleteSession(ctx, s.ID))
	_, err := chats.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := chats.RecentMessages(ctx, s.ID, 20)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSettingsUpsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	settings := NewSettingsRepository(db)

	_, err := settings.Get(ctx, "ai_api_key")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, settings.Set(ctx, "ai_api_key", "sk-first"))
	require.NoError(t, settings.Set(ctx, "ai_api_key", "sk-second"))

	v, err := settings.Get(ctx, "ai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-second", v)

	require.NoError(t, settings.Delete(ctx, "ai_api_key"))
	_, err = settings.Get(ctx, "ai_api_key")
	assert.ErrorIs(t, err, ErrNotFound)
}
