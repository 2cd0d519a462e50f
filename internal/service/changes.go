package service

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/sumire/defects/internal/domain"
)

// HistoryStore appends change entries.
type HistoryStore interface {
	Append(ctx context.Context, e domain.ChangeEntry) error
}

// ChangeRecorder writes the audit trail of defect mutations.
type ChangeRecorder struct {
	history HistoryStore
}

// NewChangeRecorder creates a new ChangeRecorder.
func NewChangeRecorder(history HistoryStore) *ChangeRecorder {
	return &ChangeRecorder{history: history}
}

// Record appends one entry for field. An update whose old and new values
// stringify equally writes nothing.
func (r *ChangeRecorder) Record(ctx context.Context, defectID, actorID int64, field string, oldValue, newValue any, action domain.ChangeAction) error {
	oldStr, newStr := stringify(oldValue), stringify(newValue)
	if action == domain.ChangeUpdated && sameValue(oldStr, newStr) {
		return nil
	}

	if err := r.history.Append(ctx, domain.ChangeEntry{
		DefectID: defectID,
		UserID:   actorID,
		Field:    field,
		OldValue: oldStr,
		NewValue: newStr,
		Action:   action,
	}); err != nil {
		return fmt.Errorf("record %s change: %w", field, err)
	}
	return nil
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// stringify renders a value the way it is stored in the history table.
// nil and nil pointers become NULL.
func stringify(v any) *string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
		rv = rv.Elem()
	}

	var s string
	switch x := v.(type) {
	case time.Time:
		s = x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		s = x.String()
	default:
		switch rv.Kind() {
		case reflect.String:
			s = rv.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			s = strconv.FormatUint(rv.Uint(), 10)
		case reflect.Bool:
			s = strconv.FormatBool(rv.Bool())
		default:
			s = fmt.Sprint(v)
		}
	}
	return &s
}
