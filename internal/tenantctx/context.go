// Package tenantctx carries the active company (tenant) identity through
// request contexts. The auth middleware injects it; billing services read it.
package tenantctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// CompanyContextKey is the request context key for the active company ID.
type CompanyContextKey struct{}

// WithCompanyID stores the company ID in the context.
func WithCompanyID(ctx context.Context, companyID snowflake.ID) context.Context {
	return context.WithValue(ctx, CompanyContextKey{}, companyID)
}

// CompanyIDFromContext returns the company ID from context, if set.
func CompanyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(CompanyContextKey{})
	if value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
