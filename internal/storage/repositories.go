package storage

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/famhealth/famhealth/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// MemberRepository persists family members.
type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, m *Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (id, name, gender, birth_date, relation, blood_type, chronic_diseases, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Name, m.Gender, m.BirthDate, m.Relation, m.BloodType, m.ChronicDiseases, m.CreatedAt)
	if err != nil {
		return domain.StorageError("create member", err)
	}
	return nil
}

func (r *MemberRepository) Get(ctx context.Context, id string) (*Member, error) {
	var m Member
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, gender, birth_date, relation, blood_type, chronic_diseases, created_at
		 FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Gender, &m.BirthDate, &m.Relation, &m.BloodType, &m.ChronicDiseases, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageError("get member", err)
	}
	return &m, nil
}

func (r *MemberRepository) List(ctx context.Context) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, gender, birth_date, relation, blood_type, chronic_diseases, created_at
		 FROM members ORDER BY created_at`)
	if err != nil {
		return nil, domain.StorageError("list members", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Gender, &m.BirthDate, &m.Relation, &m.BloodType, &m.ChronicDiseases, &m.CreatedAt); err != nil {
			return nil, domain.StorageError("scan member", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return domain.StorageError("delete member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentRepository persists uploaded health documents and their extraction
// outcomes.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DocType == "" {
		d.DocType = DocTypeOther
	}
	if d.Status == "" {
		d.Status = DocStatusPending
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents
		 (id, member_id, file_name, file_path, doc_type, status, raw_text, report_json, tokens_used, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.MemberID, d.FileName, d.FilePath, d.DocType, d.Status,
		d.RawText, d.ReportJSON, d.TokensUsed, d.Error, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return domain.StorageError("create document", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := r.db.QueryRowContext(ctx,
		`SELECT id, member_id, file_name, file_path, doc_type, status, raw_text, report_json, tokens_used, error, created_at, updated_at
		 FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.MemberID, &d.FileName, &d.FilePath, &d.DocType, &d.Status,
			&d.RawText, &d.ReportJSON, &d.TokensUsed, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageError("get document", err)
	}
	return &d, nil
}

// SetStatus moves a document to a new processing state.
func (r *DocumentRepository) SetStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return domain.StorageError("update document status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult records a completed extraction.
func (r *DocumentRepository) SaveResult(ctx context.Context, id, rawText, reportJSON string, tokensUsed int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents
		 SET status = $1, raw_text = $2, report_json = $3, tokens_used = $4, error = '', updated_at = $5
		 WHERE id = $6`,
		DocStatusCompleted, rawText, reportJSON, tokensUsed, time.Now().UTC(), id)
	if err != nil {
		return domain.StorageError("save document result", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) ListByMember(ctx context.Context, memberID string) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, file_name, file_path, doc_type, status, raw_text, report_json, tokens_used, error, created_at, updated_at
		 FROM documents WHERE member_id = $1 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, domain.StorageError("list documents", err)
	}
	return scanDocuments(rows)
}

// ListForContext returns completed documents for chat-context assembly:
// newer than since, ranked by ContextPriority then recency, capped at limit.
// The query takes the newest rows; ranking happens in Go so the priority
// table lives in one place.
func (r *DocumentRepository) ListForContext(ctx context.Context, memberID string, since time.Time, limit int) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, file_name, file_path, doc_type, status, raw_text, report_json, tokens_used, error, created_at, updated_at
		 FROM documents
		 WHERE member_id = $1 AND status = $2 AND created_at >= $3
		 ORDER BY created_at DESC
		 LIMIT $4`,
		memberID, DocStatusCompleted, since, limit)
	if err != nil {
		return nil, domain.StorageError("list documents for context", err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return ContextPriority(docs[i].DocType) < ContextPriority(docs[j].DocType)
	})
	return docs, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.MemberID, &d.FileName, &d.FilePath, &d.DocType, &d.Status,
			&d.RawText, &d.ReportJSON, &d.TokensUsed, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, domain.StorageError("scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// HealthRecordRepository persists manually logged measurements.
type HealthRecordRepository struct {
	db *sql.DB
}

func NewHealthRecordRepository(db *sql.DB) *HealthRecordRepository {
	return &HealthRecordRepository{db: db}
}

func (r *HealthRecordRepository) Create(ctx context.Context, rec *HealthRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordType == "" {
		rec.RecordType = RecordTypeOther
	}
	rec.CreatedAt = time.Now().UTC()
	if rec.MeasuredAt.IsZero() {
		rec.MeasuredAt = rec.CreatedAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO health_records (id, member_id, record_type, value, unit, note, measured_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.MemberID, rec.RecordType, rec.Value, rec.Unit, rec.Note, rec.MeasuredAt, rec.CreatedAt)
	if err != nil {
		return domain.StorageError("create health record", err)
	}
	return nil
}

// ListRecent returns a member's measurements newest-first, newer than since,
// capped at limit. A zero since means no lower bound.
func (r *HealthRecordRepository) ListRecent(ctx context.Context, memberID string, since time.Time, limit int) ([]HealthRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, record_type, value, unit, note, measured_at, created_at
		 FROM health_records
		 WHERE member_id = $1 AND measured_at >= $2
		 ORDER BY measured_at DESC, id DESC
		 LIMIT $3`,
		memberID, since, limit)
	if err != nil {
		return nil, domain.StorageError("list health records", err)
	}
	defer rows.Close()

	records := []HealthRecord{}
	for rows.Next() {
		var rec HealthRecord
		if err := rows.Scan(&rec.ID, &rec.MemberID, &rec.RecordType, &rec.Value, &rec.Unit, &rec.Note, &rec.MeasuredAt, &rec.CreatedAt); err != nil {
			return nil, domain.StorageError("scan health record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *HealthRecordRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM health_records WHERE id = $1`, id)
	if err != nil {
		return domain.StorageError("delete health record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ChatRepository persists sessions and their messages.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) CreateSession(ctx context.Context, s *ChatSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, member_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.MemberID, s.Title, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return domain.StorageError("create chat session", err)
	}
	return nil
}

func (r *ChatRepository) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	var s ChatSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, member_id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.MemberID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageError("get chat session", err)
	}
	return &s, nil
}

func (r *ChatRepository) ListSessions(ctx context.Context) ([]ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, title, created_at, updated_at
		 FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, domain.StorageError("list chat sessions", err)
	}
	defer rows.Close()

	sessions := []ChatSession{}
	for rows.Next() {
		var s ChatSession
		if err := rows.Scan(&s.ID, &s.MemberID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, domain.StorageError("scan chat session", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *ChatRepository) UpdateSessionTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = $2 WHERE id = $3`,
		title, time.Now().UTC(), id)
	if err != nil {
		return domain.StorageError("update session title", err)
	}
	return nil
}

func (r *ChatRepository) TouchSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return domain.StorageError("touch session", err)
	}
	return nil
}

func (r *ChatRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
		return domain.StorageError("delete session messages", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return domain.StorageError("delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatRepository) AddMessage(ctx context.Context, m *ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SessionID, m.Role, m.Content, m.TokensUsed, m.CreatedAt)
	if err != nil {
		return domain.StorageError("add chat message", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a session in
// chronological order.
func (r *ChatRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tokens_used, created_at
		 FROM chat_messages WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, domain.StorageError("list chat messages", err)
	}
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, domain.StorageError("scan chat message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SettingsRepository persists key/value settings.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", domain.StorageError("get setting", err)
	}
	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return domain.StorageError("set setting", err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
	if err != nil {
		return domain.StorageError("delete setting", err)
	}
	return nil
}
