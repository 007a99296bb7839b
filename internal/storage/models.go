// Package storage persists family members, health documents, chat history,
// and settings. Repositories speak plain database/sql so the same code runs
// against SQLite in development and Postgres in production.
package storage

import "time"

// Document processing states.
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Document types, ordered by clinical breadth. ContextPriority ranks them for
// chat-context assembly.
const (
	DocTypePhysicalExam  = "PHYSICAL_EXAM"
	DocTypeLabReport     = "LAB_REPORT"
	DocTypeMedicalRecord = "MEDICAL_RECORD"
	DocTypeImagingReport = "IMAGING_REPORT"
	DocTypePrescription  = "PRESCRIPTION"
	DocTypeOther         = "OTHER"
)

// ContextPriority returns the chat-context rank for a document type. Lower is
// more important.
func ContextPriority(docType string) int {
	switch docType {
	case DocTypePhysicalExam:
		return 1
	case DocTypeLabReport:
		return 2
	case DocTypeMedicalRecord:
		return 3
	case DocTypeImagingReport:
		return 4
	case DocTypePrescription:
		return 5
	default:
		return 6
	}
}

// Member is one person in the family.
type Member struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Gender          string    `json:"gender,omitempty"`
	BirthDate       string    `json:"birthDate,omitempty"` // YYYY-MM-DD
	Relation        string    `json:"relation,omitempty"`
	BloodType       string    `json:"bloodType,omitempty"`
	ChronicDiseases string    `json:"chronicDiseases,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Health record types for manual measurements.
const (
	RecordTypeBloodPressure = "BLOOD_PRESSURE"
	RecordTypeBloodSugar    = "BLOOD_SUGAR"
	RecordTypeWeight        = "WEIGHT"
	RecordTypeHeartRate     = "HEART_RATE"
	RecordTypeTemperature   = "TEMPERATURE"
	RecordTypeOther         = "OTHER"
)

// HealthRecord is one manually logged measurement, as opposed to a value
// extracted from an uploaded document.
type HealthRecord struct {
	ID         string    `json:"id"`
	MemberID   string    `json:"memberId"`
	RecordType string    `json:"recordType"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Note       string    `json:"note,omitempty"`
	MeasuredAt time.Time `json:"measuredAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Document is an uploaded health document and its processing outcome.
// ReportJSON holds the serialized ParsedHealthReport once extraction
// succeeds.
type Document struct {
	ID         string    `json:"id"`
	MemberID   string    `json:"memberId"`
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"-"`
	DocType    string    `json:"docType"`
	Status     string    `json:"status"`
	RawText    string    `json:"rawText,omitempty"`
	ReportJSON string    `json:"reportJson,omitempty"`
	TokensUsed int       `json:"tokensUsed"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ChatSession is one conversation thread, optionally tied to a member.
type ChatSession struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"memberId,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatMessage is one turn in a session.
type ChatMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokensUsed,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Setting is one key/value configuration row.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
