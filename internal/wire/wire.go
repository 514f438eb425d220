// Package wire translates JSON object keys between the snake_case names used
// by the scheduling backend and the camelCase names used by clients.
//
// The mapping is an explicit table rather than a string transform so that a
// key nobody declared is rejected instead of silently passed through.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kalambet/readq/internal/errs"
)

// Field is one row of the mapping table.
type Field struct {
	Snake string
	Camel string
}

var fields = []Field{
	// queue items
	{"id", "id"},
	{"source_document_id", "sourceDocumentId"},
	{"title", "title"},
	{"item_type", "itemType"},
	{"due_date", "dueDate"},
	{"estimated_minutes", "estimatedMinutes"},
	{"tags", "tags"},
	{"category", "category"},
	{"priority_rating", "priorityRating"},
	{"priority_slider", "prioritySlider"},
	{"progress_percent", "progressPercent"},
	{"suspended", "suspended"},
	{"items", "items"},
	{"item", "item"},
	{"status", "status"},

	// priority
	{"vector", "vector"},
	{"score", "score"},
	{"retention_risk", "retentionRisk"},
	{"cognitive_load", "cognitiveLoad"},
	{"time_efficiency", "timeEfficiency"},
	{"user_intent", "userIntent"},
	{"overdue_penalty", "overduePenalty"},
	{"name", "name"},
	{"weights", "weights"},
	{"preset", "preset"},

	// queue stats
	{"total_items", "totalItems"},
	{"due_today", "dueToday"},
	{"overdue", "overdue"},
	{"new_items", "newItems"},
	{"learning_items", "learningItems"},
	{"review_items", "reviewItems"},
	{"total_estimated_minutes", "totalEstimatedMinutes"},

	// sessions
	{"budgets", "budgets"},
	{"maintenance", "maintenance"},
	{"explore", "explore"},
	{"fallback", "fallback"},
	{"time_budget_minutes", "timeBudgetMinutes"},
	{"safe_stop_count", "safeStopCount"},

	// bulk and postpone
	{"ids", "ids"},
	{"succeeded", "succeeded"},
	{"failed", "failed"},
	{"errors", "errors"},
	{"days", "days"},

	// stream
	{"kind", "kind"},
	{"engagement_score", "engagementScore"},
	{"added_at", "addedAt"},
	{"max_same_category", "maxSameCategory"},
	{"recent_window", "recentWindow"},
	{"review_percentage", "reviewPercentage"},
	{"session_key", "sessionKey"},
	{"total", "total"},
	{"reviewed", "reviewed"},
	{"position", "position"},
	{"start_position", "startPosition"},
	{"is_resuming", "isResuming"},
	{"reason", "reason"},

	// rss
	{"feed_id", "feedId"},
	{"read", "read"},
	{"published_at", "publishedAt"},

	// scheduling state and reviews
	{"state", "state"},
	{"algorithm", "algorithm"},
	{"ease_factor", "easeFactor"},
	{"interval_days", "intervalDays"},
	{"repetitions", "repetitions"},
	{"lapses", "lapses"},
	{"stability", "stability"},
	{"difficulty", "difficulty"},
	{"last_review", "lastReview"},
	{"rating", "rating"},
	{"item_id", "itemId"},
	{"reviewed_at", "reviewedAt"},

	// optimizer and statistics
	{"min_ease_factor", "minEaseFactor"},
	{"initial_ease_factor", "initialEaseFactor"},
	{"desired_retention", "desiredRetention"},
	{"initial", "initial"},
	{"best_params", "bestParams"},
	{"expected_retention", "expectedRetention"},
	{"iterations", "iterations"},
	{"converged", "converged"},
	{"total_reviews", "totalReviews"},
	{"total_lapses", "totalLapses"},
	{"avg_interval", "avgInterval"},
	{"retention_estimate", "retentionEstimate"},
	{"due_week", "dueWeek"},
	{"due_month", "dueMonth"},
	{"item_count", "itemCount"},
	{"avg_retention", "avgRetention"},

	// jobs
	{"job_id", "jobId"},
	{"attempts", "attempts"},
	{"last_error", "lastError"},
	{"result", "result"},

	// document scheduling
	{"max_daily", "maxDaily"},
	{"cards_per_document", "cardsPerDocument"},
	{"document_ids", "documentIds"},

	// events and envelopes
	{"version", "version"},
	{"at", "at"},
	{"count", "count"},
	{"error", "error"},
	{"message", "message"},
	{"type", "type"},
}

var (
	toCamel = make(map[string]string, len(fields))
	toSnake = make(map[string]string, len(fields))
)

func init() {
	for _, f := range fields {
		if _, dup := toCamel[f.Snake]; dup {
			panic("wire: duplicate snake key " + f.Snake)
		}
		if _, dup := toSnake[f.Camel]; dup {
			panic("wire: duplicate camel key " + f.Camel)
		}
		toCamel[f.Snake] = f.Camel
		toSnake[f.Camel] = f.Snake
	}
}

// Fields returns a copy of the mapping table sorted by snake name.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.Slice(out, func(i, j int) bool { return out[i].Snake < out[j].Snake })
	return out
}

// CamelOf returns the camelCase name for a snake_case key.
func CamelOf(snake string) (string, bool) {
	c, ok := toCamel[snake]
	return c, ok
}

// SnakeOf returns the snake_case name for a camelCase key.
func SnakeOf(camel string) (string, bool) {
	s, ok := toSnake[camel]
	return s, ok
}

// ToCamel rewrites every object key in a snake_case JSON document.
func ToCamel(data []byte) ([]byte, error) {
	return rewrite(data, toCamel, "snake_case")
}

// ToSnake rewrites every object key in a camelCase JSON document.
func ToSnake(data []byte) ([]byte, error) {
	return rewrite(data, toSnake, "camelCase")
}

// MarshalCamel encodes v as JSON and renames its keys to camelCase.
func MarshalCamel(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ToCamel(b)
}

// UnmarshalCamel renames the keys of a camelCase document and decodes it into v.
func UnmarshalCamel(data []byte, v any) error {
	b, err := ToSnake(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func rewrite(data []byte, table map[string]string, from string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", errs.ErrValidation, err)
	}
	out, err := rename(doc, table, from)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func rename(v any, table map[string]string, from string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			nk, ok := table[k]
			if !ok {
				return nil, fmt.Errorf("%w: unknown %s field %q", errs.ErrValidation, from, k)
			}
			nv, err := rename(val, table, from)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			nv, err := rename(val, table, from)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
