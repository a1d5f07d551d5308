package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	logdomain "github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/smallbiznis/posbridge/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	defaultLogLimit     = 200
	maxLogLimit         = 1000
	logStreamHeartbeat  = 15 * time.Second
	logStreamRetryDelay = 2000
)

func (s *Server) ListLogs(c *gin.Context) {
	since, err := parseOptionalTime(c.Query("since"), false)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_time", "invalid since"))
		return
	}
	until, err := parseOptionalTime(c.Query("until"), true)
	if err != nil {
		AbortWithError(c, newValidationError("until", "invalid_time", "invalid until"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_integer", "invalid limit"))
		return
	}
	if limit == 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	before, err := decodeLogCursor(c.Query("page_token"))
	if err != nil {
		AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
		return
	}

	entries, err := s.logs.List(c.Request.Context(), logdomain.ListFilter{
		Since:     since,
		Until:     until,
		ProfileID: c.Query("profile_id"),
		Operation: c.Query("operation"),
		Level:     c.Query("level"),
		Limit:     limit + 1,
		Before:    before,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	entries, pageInfo, err := pagination.Trim(entries, limit, func(e logdomain.LogEntry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String(), Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano)}
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []logdomain.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": pageInfo})
}

func decodeLogCursor(token string) (*logdomain.Cursor, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil || cursor == nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, cursor.Timestamp)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return &logdomain.Cursor{Timestamp: ts, ID: id}, nil
}

// StreamLogs serves live log entries as server-sent events. The recent
// backlog is replayed first, then entries follow as they are written.
func (s *Server) StreamLogs(c *gin.Context) {
	if s.liveLogs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	profileID := strings.TrimSpace(c.Query("profile_id"))
	sub, backlog, err := s.liveLogs.Subscribe(profileID)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := fmt.Fprintf(c.Writer, "retry: %d\n\n", logStreamRetryDelay); err != nil {
		return
	}
	for _, entry := range backlog {
		if err := writeLogEvent(c.Writer, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(logStreamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case entry, open := <-sub.Entries():
			if !open {
				return
			}
			if err := writeLogEvent(c.Writer, entry); err != nil {
				s.log.Debug("log stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeLogEvent(w gin.ResponseWriter, entry logdomain.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
