package handler

import (
	"net/http"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/middleware"
	"github.com/efuayankey/aimes-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	svc *service.Conversations
}

func NewConversationHandler(svc *service.Conversations) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type startConversationRequest struct {
	CulturalTag string `json:"cultural_tag"`
}

func (h *ConversationHandler) Start(c *gin.Context) {
	var req startConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body", "invalid json")
			return
		}
	}
	conv, err := h.svc.Start(c.Request.Context(), middleware.CallerFrom(c).ID, req.CulturalTag)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) ListUnclaimed(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	items, err := h.svc.ListUnclaimed(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": items, "total": len(items)})
}

func (h *ConversationHandler) History(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	caller := middleware.CallerFrom(c)
	if caller.Role == middleware.RoleRequester {
		conv, err := h.svc.Get(ctx, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if conv.RequesterID != caller.ID {
			writeError(c, errs.ErrNotFound)
			return
		}
	}
	items, err := h.svc.History(ctx, c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": items})
}

func (h *ConversationHandler) Claim(c *gin.Context) {
	conv, err := h.svc.Claim(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Release(c *gin.Context) {
	conv, err := h.svc.Release(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Close(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	conv, err := h.svc.Close(c.Request.Context(), c.Param("id"), caller.ID, caller.Supervisor())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
