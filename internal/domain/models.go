package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RecognitionResult is the settled outcome of text recognition, for a single
// image or for a whole document after page aggregation. It never carries a Go
// error: failure is expressed as Success=false plus a human-readable Error so
// per-page loops stay failure-tolerant without error handling at every site.
type RecognitionResult struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	Error      string `json:"error,omitempty"`
	TokensUsed int    `json:"tokensUsed,omitempty"`
}

// PageImage represents a single rasterized document page.
type PageImage struct {
	PageNumber int
	ImagePath  string // path to the temporary JPG inside the job workspace
	Width      int
	Height     int
}

// FlexString unmarshals either a JSON string or a JSON number, keeping the
// textual form. Model output is inconsistent about quoting indicator values.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Float returns the numeric value when the string parses as one.
func (f FlexString) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Indicator is one measured item from a health report.
type Indicator struct {
	Name           string     `json:"name"`
	Value          FlexString `json:"value"`
	Unit           string     `json:"unit,omitempty"`
	ReferenceRange string     `json:"referenceRange,omitempty"`
	IsAbnormal     bool       `json:"isAbnormal"`
	Category       string     `json:"category"`
}

// PatientInfo is the patient block of a parsed report. All fields optional.
type PatientInfo struct {
	Name   string     `json:"name,omitempty"`
	Gender string     `json:"gender,omitempty"`
	Age    FlexString `json:"age,omitempty"`
}

// ParsedHealthReport is the validated, typed view of a health document,
// built once per extraction. Re-extraction produces a new instance.
type ParsedHealthReport struct {
	ReportDate  string       `json:"reportDate,omitempty"`
	Institution string       `json:"institution,omitempty"`
	PatientInfo *PatientInfo `json:"patientInfo,omitempty"`
	Indicators  []Indicator  `json:"indicators"`
	Summary     string       `json:"summary,omitempty"`
	RawText     string       `json:"rawText"`
}

// CompletionResult is the settled, non-streaming view of a completion.
type CompletionResult struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokensUsed"`
	Model      string `json:"model"`
}

// StreamChunk is one element of a finite, non-restartable completion stream.
// The terminal element carries Done=true and the final token count; consumers
// must not assume a terminal element carries text.
type StreamChunk struct {
	Content    string `json:"content"`
	Done       bool   `json:"done"`
	TokensUsed int    `json:"tokensUsed,omitempty"`
}

// StreamFunc receives stream chunks in upstream production order.
type StreamFunc func(StreamChunk)

// ProgressFunc is invoked after every page attempt as (current, total, message).
type ProgressFunc func(current, total int, message string)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
