package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/fabriko/fabriko/internal/tenantctx"
)

// Tenant identity is resolved by the suite's auth layer in front of this
// service; it forwards the authenticated company and role as headers.
const (
	HeaderCompany = "X-Company-ID"
	HeaderRole    = "X-User-Role"

	contextCompanyIDKey = "company_id"
)

// TenantContext requires a resolved company and injects it into the request
// context for the service layer.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderCompany))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		companyID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextCompanyIDKey, companyID.String())
		ctx := tenantctx.WithCompanyID(c.Request.Context(), companyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// BillingAdminRequired restricts billing commands to roles that may change
// the company's subscription.
func BillingAdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole)))
		switch role {
		case "owner", "admin", "billing_admin":
			c.Next()
		default:
			AbortWithError(c, ErrForbidden)
		}
	}
}
