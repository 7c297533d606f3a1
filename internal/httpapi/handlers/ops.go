package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/common"
	"github.com/suPer8Hu/comet/internal/session"
)

const dateLayout = "2006-01-02"

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) ListModeration(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			common.Fail(c, http.StatusBadRequest, 40001, "invalid limit")
			return
		}
		limit = n
	}
	records, err := h.Moderation.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error("list moderation failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, gin.H{"records": records})
}

func (h *Handler) ListAccess(c *gin.Context) {
	t, err := access.ParseType(c.Param("type"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40002, "unknown access type")
		return
	}
	ids, err := h.Access.UserIDs(c.Request.Context(), t)
	if err != nil {
		h.Logger.Error("list access failed", "access_type", t, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	common.OK(c, gin.H{"access_type": t, "user_ids": ids})
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, s, h.Location)
}

func (h *Handler) AccessHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40003, "invalid user_id")
		return
	}
	from, err := h.parseDate(c.Query("from"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40004, "invalid from, want YYYY-MM-DD")
		return
	}
	to, err := h.parseDate(c.Query("to"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 40004, "invalid to, want YYYY-MM-DD")
		return
	}

	entries, err := h.Access.History(c.Request.Context(), userID, from, to)
	if err != nil {
		h.Logger.Error("access history failed", "user_id", userID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, gin.H{"user_id": userID, "entries": entries})
}

func (h *Handler) GetSession(c *gin.Context) {
	threadID := c.Param("thread_id")
	cfg, err := h.Sessions.Get(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			common.Fail(c, http.StatusNotFound, 40401, "no active session")
			return
		}
		h.Logger.Error("get session failed", "thread_id", threadID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "session store error")
		return
	}
	// system prompts stay out of the ops surface
	cfg.SystemPrompt = nil
	common.OK(c, gin.H{"thread_id": threadID, "config": cfg})
}
