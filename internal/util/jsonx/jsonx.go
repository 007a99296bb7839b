// Package jsonx extracts JSON payloads from model replies. Replies routinely
// wrap the JSON in markdown code fences or surrounding prose, so callers get
// a cascade of increasingly aggressive candidates instead of one parse.
package jsonx

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Candidates returns possible JSON payloads from reply, most precise first:
// the contents of a fenced code block, then the substring from the first '{'
// to the last '}', then the trimmed reply itself. Duplicates are dropped.
func Candidates(reply string) []string {
	trimmed := strings.TrimSpace(reply)
	var out []string
	seen := map[string]bool{}

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		add(m[1])
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			add(trimmed[start : end+1])
		}
	}

	add(trimmed)
	return out
}

// DecodeFirst unmarshals the first candidate that parses into v. It returns
// an error only when every candidate fails. v must be a non-nil pointer.
// Each candidate is decoded into a fresh value so a candidate that fails
// partway through cannot leave stray fields behind in v.
func DecodeFirst(reply string, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer")
	}

	candidates := Candidates(reply)
	if len(candidates) == 0 {
		return fmt.Errorf("reply is empty")
	}

	var lastErr error
	for _, c := range candidates {
		fresh := reflect.New(rv.Type().Elem())
		if err := json.Unmarshal([]byte(c), fresh.Interface()); err == nil {
			rv.Elem().Set(fresh.Elem())
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("no candidate parsed as JSON: %w", lastErr)
}
