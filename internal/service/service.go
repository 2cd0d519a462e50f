// Package service holds the business rules of the defect tracker.
package service

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sumire/defects/internal/domain"
)

// Transactor runs fn in a single database transaction carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type userFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

type projectFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Project, error)
}

type stageFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Stage, error)
}

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from user supplied text and trims surrounding space.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// cleanOptionalText is cleanText for nullable fields; blank input becomes nil.
func cleanOptionalText(s *string) *string {
	if s == nil {
		return nil
	}
	c := cleanText(*s)
	if c == "" {
		return nil
	}
	return &c
}

func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return domain.NewValidationError(field, "is required")
	}
	if n < min || n > max {
		return domain.NewValidationError(field, "must be between %d and %d characters", min, max)
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameText(a, b *string) bool {
	return sameValue(a, b)
}
