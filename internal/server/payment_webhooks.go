package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderProviderSignature carries the provider's HMAC over the raw body.
const HeaderProviderSignature = "X-Payfabric-Signature"

// HandleProviderWebhook ingests one provider delivery. The raw body is read
// before any parsing so the signature covers exactly the bytes on the wire.
// Duplicates are acknowledged with 200 so the provider stops retrying;
// processing failures bubble up as 500 so it retries later.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhookSvc.Handle(c.Request.Context(), payload, c.GetHeader(HeaderProviderSignature)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
