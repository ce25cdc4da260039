package handler

import (
	"net/http"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/middleware"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	queue     *service.Queue
	leases    *service.Leases
	finalizer *service.Finalizer
	maxPage   int
}

// NewRequestHandler serves the request endpoints. maxPage is the default and
// largest page of the pending list; 0 leaves it unbounded.
func NewRequestHandler(queue *service.Queue, leases *service.Leases, finalizer *service.Finalizer, maxPage int) *RequestHandler {
	return &RequestHandler{queue: queue, leases: leases, finalizer: finalizer, maxPage: maxPage}
}

type submitRequest struct {
	Content        string         `json:"content"`
	Anonymous      bool           `json:"anonymous"`
	Tags           []string       `json:"tags"`
	Priority       model.Priority `json:"priority"`
	CulturalTag    string         `json:"cultural_tag"`
	Routing        model.Routing  `json:"routing"`
	ConversationID string         `json:"conversation_id"`
}

func (h *RequestHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid json")
		return
	}
	r, err := h.queue.Enqueue(c.Request.Context(), service.Draft{
		Content:        req.Content,
		RequesterID:    middleware.CallerFrom(c).ID,
		Anonymous:      req.Anonymous,
		Tags:           req.Tags,
		Priority:       req.Priority,
		CulturalTag:    req.CulturalTag,
		Routing:        req.Routing,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *RequestHandler) ListPending(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	if h.maxPage > 0 && (limit == 0 || limit > h.maxPage) {
		limit = h.maxPage
	}
	items, err := h.queue.ListPending(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": items, "total": len(items)})
}

// visible loads a request the caller may see. Requesters only see their
// own requests; others get 404.
func (h *RequestHandler) visible(c *gin.Context) (*model.Request, bool) {
	r, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	caller := middleware.CallerFrom(c)
	if caller.Role == middleware.RoleRequester && !service.RequestedBy(r, caller.ID) {
		writeError(c, errs.ErrNotFound)
		return nil, false
	}
	return r, true
}

func (h *RequestHandler) Get(c *gin.Context) {
	r, ok := h.visible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RequestHandler) Responses(c *gin.Context) {
	r, ok := h.visible(c)
	if !ok {
		return
	}
	items, err := h.queue.Responses(c.Request.Context(), r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": items})
}

func (h *RequestHandler) Claim(c *gin.Context) {
	r, err := h.leases.Claim(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RequestHandler) Release(c *gin.Context) {
	r, err := h.leases.Release(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type respondRequest struct {
	Content string `json:"content"`
}

func (h *RequestHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid json")
		return
	}
	resp, err := h.finalizer.SubmitResponse(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c).ID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RequestHandler) AutoRespond(c *gin.Context) {
	resp, err := h.finalizer.SubmitAutomated(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RequestHandler) Close(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	r, err := h.finalizer.Close(c.Request.Context(), c.Param("id"), caller.ID, caller.Supervisor())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
