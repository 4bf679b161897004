package middleware

import (
	"context"
	"strings"

	"codejudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader     = "X-Trace-Id"
	requestIDHeader   = "X-Request-Id"
	traceparentHeader = "traceparent"

	maxInboundIDLen = 128
)

// TraceContextMiddleware puts a trace id and a request id on the request context,
// the gin context and the response headers. Inbound ids are reused; a W3C traceparent
// supplies the trace id when X-Trace-Id is absent.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := inboundID(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = traceIDFromTraceparent(c.GetHeader(traceparentHeader))
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		requestID := inboundID(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(string(contextkey.TraceID), traceID)
		c.Set(string(contextkey.RequestID), requestID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(traceIDHeader, traceID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func inboundID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxInboundIDLen {
		return ""
	}
	return id
}

// traceparent: version-traceid-parentid-flags, trace id is 32 hex chars and not all zero.
func traceIDFromTraceparent(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	id := strings.ToLower(parts[1])
	if strings.Trim(id, "0") == "" || strings.Trim(id, "0123456789abcdef") != "" {
		return ""
	}
	return id
}
