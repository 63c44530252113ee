package normalize

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"
)

var compiled sync.Map // expression -> *jmespath.JMESPath

// Record exposes a raw platform payload through ordered JMESPath candidates.
// Each accessor returns the first candidate that yields a non-empty value.
type Record struct {
	data     any
	location *time.Location
	logger   *slog.Logger
}

// NewRecord wraps a decoded JSON object. A nil location means UTC; a nil logger discards coercion notes.
func NewRecord(raw map[string]any, loc *time.Location, logger *slog.Logger) Record {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Record{data: raw, location: loc, logger: logger}
}

// Value returns the first non-empty candidate value or nil.
func (r Record) Value(paths ...string) any {
	for _, path := range paths {
		v := r.search(path)
		if !isEmpty(v) {
			return v
		}
	}
	return nil
}

// String returns the first candidate coerced to a trimmed string.
func (r Record) String(paths ...string) string {
	for _, path := range paths {
		if s := asString(r.search(path)); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the first candidate that parses as a decimal.
func (r Record) Float(paths ...string) *float64 {
	for _, path := range paths {
		v := r.search(path)
		if isEmpty(v) {
			continue
		}
		if f, ok := ParseDecimal(v); ok {
			return &f
		}
		r.logger.Debug("unparseable decimal", "path", path, "value", v)
	}
	return nil
}

// Bool returns the first candidate that is an explicit boolean.
func (r Record) Bool(paths ...string) (value bool, present bool) {
	for _, path := range paths {
		switch v := r.search(path).(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		case float64:
			return v != 0, true
		}
	}
	return false, false
}

// Time returns the first candidate that parses as a timestamp.
func (r Record) Time(paths ...string) *time.Time {
	for _, path := range paths {
		v := r.search(path)
		if isEmpty(v) {
			continue
		}
		if t, ok := ParseTimeValue(v, r.location); ok {
			return &t
		}
		r.logger.Debug("unparseable timestamp", "path", path, "value", v)
	}
	return nil
}

func (r Record) search(path string) any {
	if r.data == nil || path == "" {
		return nil
	}
	expr, err := compile(path)
	if err != nil {
		r.logger.Debug("invalid field path", "path", path, "error", err)
		return nil
	}
	v, err := expr.Search(r.data)
	if err != nil {
		return nil
	}
	return v
}

func compile(path string) (*jmespath.JMESPath, error) {
	if cached, ok := compiled.Load(path); ok {
		return cached.(*jmespath.JMESPath), nil
	}
	expr, err := jmespath.Compile(path)
	if err != nil {
		return nil, err
	}
	compiled.Store(path, expr)
	return expr, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
