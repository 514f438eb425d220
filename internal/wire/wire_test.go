package wire

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/bulk"
	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/service"
	"github.com/kalambet/readq/internal/session"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/state"
	"github.com/kalambet/readq/internal/stream"
)

func TestFields_Bijective(t *testing.T) {
	seenSnake := map[string]bool{}
	seenCamel := map[string]bool{}
	for _, f := range Fields() {
		require.False(t, seenSnake[f.Snake], "duplicate snake %q", f.Snake)
		require.False(t, seenCamel[f.Camel], "duplicate camel %q", f.Camel)
		seenSnake[f.Snake] = true
		seenCamel[f.Camel] = true

		c, ok := CamelOf(f.Snake)
		require.True(t, ok)
		assert.Equal(t, f.Camel, c)
		s, ok := SnakeOf(f.Camel)
		require.True(t, ok)
		assert.Equal(t, f.Snake, s)

		assert.NotContains(t, f.Camel, "_", "camel name %q", f.Camel)
		assert.Equal(t, strings.ToLower(f.Snake), f.Snake, "snake name %q", f.Snake)
	}
}

func TestFields_ReturnsCopy(t *testing.T) {
	a := Fields()
	a[0].Camel = "mutated"
	b := Fields()
	assert.NotEqual(t, "mutated", b[0].Camel)
}

func TestToCamel_Nested(t *testing.T) {
	in := `{"item":{"id":"a","due_date":"2024-01-01T00:00:00Z","tags":["x_y"]},"vector":{"retention_risk":0.5},"items":[{"item_type":"document"}]}`
	out, err := ToCamel([]byte(in))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	item := got["item"].(map[string]any)
	assert.Equal(t, "2024-01-01T00:00:00Z", item["dueDate"])
	assert.Equal(t, []any{"x_y"}, item["tags"], "values are not renamed")
	assert.Equal(t, 0.5, got["vector"].(map[string]any)["retentionRisk"])
	assert.Equal(t, "document", got["items"].([]any)[0].(map[string]any)["itemType"])
}

func TestToSnake_UnknownKeyRejected(t *testing.T) {
	_, err := ToSnake([]byte(`{"id":"a","dueDateX":1}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Contains(t, err.Error(), "dueDateX")
}

func TestToCamel_SnakeKeyRejectedOnCamelSide(t *testing.T) {
	_, err := ToSnake([]byte(`{"due_date":"x"}`))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestToCamel_InvalidJSON(t *testing.T) {
	_, err := ToCamel([]byte(`{"id":`))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestToCamel_Scalars(t *testing.T) {
	out, err := ToCamel([]byte(`[1,"a",null,true]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,"a",null,true]`, string(out))
}

func TestRoundTrip_PreservesLargeNumbers(t *testing.T) {
	in := `{"version":18446744073709551615}`
	camel, err := ToCamel([]byte(in))
	require.NoError(t, err)
	back, err := ToSnake(camel)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(back))
}

func TestMarshalCamel_QueueItemRoundTrip(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	item := queue.Item{
		ID:               "i1",
		SourceDocumentID: "d1",
		Title:            "Spaced repetition",
		ItemType:         queue.LearningItem,
		DueDate:          &due,
		EstimatedMinutes: 3,
		Tags:             []string{"memory"},
		PriorityRating:   4,
		PrioritySlider:   70,
		ProgressPercent:  10,
	}
	b, err := MarshalCamel(item)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sourceDocumentId":"d1"`)
	assert.Contains(t, string(b), `"itemType":"learning-item"`)

	var back queue.Item
	require.NoError(t, UnmarshalCamel(b, &back))
	assert.Equal(t, item.ID, back.ID)
	assert.Equal(t, item.ItemType, back.ItemType)
	require.NotNil(t, back.DueDate)
	assert.True(t, due.Equal(*back.DueDate))
	assert.Equal(t, item.PrioritySlider, back.PrioritySlider)
}

// Every key any exposed type can emit must be in the table.
func TestFields_CoverExposedTypes(t *testing.T) {
	types := []any{
		queue.Item{}, queue.Stats{}, queue.Scored{}, queue.Preset{},
		session.Block{}, session.Budgets{},
		bulk.Result{},
		stream.Item{}, stream.Candidate{}, stream.Resume{}, stream.Config{},
		srs.State{},
		optimizer.Params{}, optimizer.Review{}, optimizer.Result{},
		optimizer.ReviewStatistics{}, optimizer.AlgorithmComparison{}, optimizer.ItemSchedule{},
		state.Event{},
		service.ItemPriority{}, service.BlocksRequest{}, service.StreamRequest{}, service.OptimizationJob{},
	}
	for _, v := range types {
		for _, key := range jsonKeys(reflect.TypeOf(v), map[reflect.Type]bool{}) {
			_, ok := CamelOf(key)
			assert.True(t, ok, "%T emits unmapped key %q", v, key)
		}
	}
}

func jsonKeys(t reflect.Type, seen map[reflect.Type]bool) []string {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || seen[t] || t == reflect.TypeOf(time.Time{}) {
		return nil
	}
	seen[t] = true
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			keys = append(keys, jsonKeys(f.Type, seen)...)
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys = append(keys, name)
		keys = append(keys, jsonKeys(f.Type, seen)...)
	}
	return keys
}
