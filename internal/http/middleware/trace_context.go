package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext assigns trace and request ids, echoes them as response headers and
// tags the server span with them and with the session the request addresses.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		attrs := []attribute.KeyValue{attribute.String("request.id", reqID)}
		if sid := sessionIDFromRequest(c); sid != "" {
			attrs = append(attrs, attribute.String("session.id", sid))
		}
		span.SetAttributes(attrs...)

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// sessionIDFromRequest finds the session a request addresses: the :id route param on
// /api/sessions, :session_id on the ping socket, or ?session_id on the coach sockets.
func sessionIDFromRequest(c *gin.Context) string {
	for _, v := range []string{c.Param("id"), c.Param("session_id"), c.Query("session_id")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
