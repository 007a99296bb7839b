package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/famhealth/famhealth/internal/cache"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

const (
	contextWindowDays  = 30
	contextMaxDocs     = 30
	contextMaxRecords  = 30
	contextMaxDocRunes = 3000
	contextCacheTTL    = 5 * time.Minute
)

// DocumentSource lists completed documents for context assembly.
type DocumentSource interface {
	ListForContext(ctx context.Context, memberID string, since time.Time, limit int) ([]storage.Document, error)
}

// RecordSource lists manually logged measurements for context assembly.
type RecordSource interface {
	ListRecent(ctx context.Context, memberID string, since time.Time, limit int) ([]storage.HealthRecord, error)
}

// MemberSource resolves a member's profile.
type MemberSource interface {
	Get(ctx context.Context, id string) (*storage.Member, error)
}

// ContextBuilder assembles the health-context block injected into the chat
// system prompt. Results are cached per member since context assembly reads
// every recent document.
type ContextBuilder struct {
	docs    DocumentSource
	records RecordSource
	members MemberSource
	cache   cache.Client
}

// NewContextBuilder creates a ContextBuilder. records, members and cache may
// be nil to skip measurements, the profile block and caching respectively.
func NewContextBuilder(docs DocumentSource, records RecordSource, members MemberSource, c cache.Client) *ContextBuilder {
	return &ContextBuilder{docs: docs, records: records, members: members, cache: c}
}

// Build returns the health-context text for a member, empty when the member
// has neither completed documents nor logged measurements.
func (b *ContextBuilder) Build(ctx context.Context, memberID string) (string, error) {
	if memberID == "" {
		return "", nil
	}

	cacheKey := "health-context:" + memberID
	if b.cache != nil {
		if cached, err := b.cache.Get(ctx, cacheKey); err == nil {
			return cached, nil
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -contextWindowDays)
	docs, err := b.docs.ListForContext(ctx, memberID, since, contextMaxDocs)
	if err != nil {
		return "", err
	}

	var records []storage.HealthRecord
	if b.records != nil {
		records, err = b.records.ListRecent(ctx, memberID, since, contextMaxRecords)
		if err != nil {
			return "", err
		}
		// A sparse month still deserves context: fall back to the
		// member's latest measurements regardless of age.
		if len(records) < contextMaxRecords {
			records, err = b.records.ListRecent(ctx, memberID, time.Time{}, contextMaxRecords)
			if err != nil {
				return "", err
			}
		}
	}

	if len(docs) == 0 && len(records) == 0 {
		return "", nil
	}

	profile := ""
	if b.members != nil {
		member, err := b.members.Get(ctx, memberID)
		if err == nil {
			profile = renderProfile(member)
		}
	}

	text := profile + renderRecords(records) + renderContext(docs)
	if b.cache != nil {
		_ = b.cache.Set(ctx, cacheKey, text, contextCacheTTL)
	}
	return text, nil
}

// renderProfile formats the member block of the context.
func renderProfile(m *storage.Member) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("家庭成员：%s", m.Name))
	if m.Gender != "" {
		sb.WriteString("，性别：" + m.Gender)
	}
	if age, ok := ageFromBirthDate(m.BirthDate, time.Now()); ok {
		sb.WriteString(fmt.Sprintf("，年龄：%d岁", age))
	}
	if m.BloodType != "" && m.BloodType != "unknown" {
		sb.WriteString("，血型：" + m.BloodType)
	}
	if m.ChronicDiseases != "" {
		sb.WriteString("，慢性病史：" + m.ChronicDiseases)
	}
	sb.WriteString("\n\n")
	return sb.String()
}

// ageFromBirthDate computes full years from a YYYY-MM-DD birth date.
func ageFromBirthDate(birthDate string, now time.Time) (int, bool) {
	born, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return 0, false
	}
	age := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// Invalidate drops the cached context for a member, called after a new
// document finishes processing.
func (b *ContextBuilder) Invalidate(ctx context.Context, memberID string) {
	if b.cache != nil && memberID != "" {
		_ = b.cache.Delete(ctx, "health-context:"+memberID)
	}
}

// renderRecords formats the manually logged measurements block.
func renderRecords(records []storage.HealthRecord) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("近期健康记录：\n")
	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("- %s %s：%s", rec.MeasuredAt.Format("2006-01-02"), recordTypeLabel(rec.RecordType), rec.Value))
		if rec.Unit != "" {
			sb.WriteString(" " + rec.Unit)
		}
		if rec.Note != "" {
			sb.WriteString("（" + rec.Note + "）")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func recordTypeLabel(recordType string) string {
	switch recordType {
	case storage.RecordTypeBloodPressure:
		return "血压"
	case storage.RecordTypeBloodSugar:
		return "血糖"
	case storage.RecordTypeWeight:
		return "体重"
	case storage.RecordTypeHeartRate:
		return "心率"
	case storage.RecordTypeTemperature:
		return "体温"
	default:
		return "其他记录"
	}
}

func renderContext(docs []storage.Document) string {
	if len(docs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("以下是该家庭成员近期的健康档案，回答时请结合这些信息：\n")

	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("\n【档案 %d】类型：%s，日期：%s\n",
			i+1, doc.DocType, doc.CreatedAt.Format("2006-01-02")))
		sb.WriteString(truncateRunes(documentSummary(doc), contextMaxDocRunes))
		sb.WriteString("\n")
	}
	return sb.String()
}

// documentSummary prefers the structured report over raw recognized text.
func documentSummary(doc storage.Document) string {
	if doc.ReportJSON != "" {
		var parsed domain.ParsedHealthReport
		if err := json.Unmarshal([]byte(doc.ReportJSON), &parsed); err == nil {
			if s := renderReport(&parsed); s != "" {
				return s
			}
		}
	}
	return doc.RawText
}

func renderReport(r *domain.ParsedHealthReport) string {
	var sb strings.Builder
	if r.Summary != "" {
		sb.WriteString(r.Summary)
		sb.WriteString("\n")
	}
	for _, ind := range r.Indicators {
		mark := ""
		if ind.IsAbnormal {
			mark = "（异常）"
		}
		sb.WriteString(fmt.Sprintf("%s: %s %s %s\n", ind.Name, ind.Value, ind.Unit, mark))
	}
	return strings.TrimSpace(sb.String())
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
