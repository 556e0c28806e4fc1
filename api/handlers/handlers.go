package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Singhary/chaty/api/middleware"
	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "chaty"

// Handlers holds the services used by the HTTP API.
type Handlers struct {
	store    services.Store
	users    *services.UserService
	friends  *services.FriendService
	groups   *services.GroupService
	messages *services.MessageService
	hub      *services.Hub
	log      *zap.Logger
}

type Deps struct {
	Store    services.Store
	Users    *services.UserService
	Friends  *services.FriendService
	Groups   *services.GroupService
	Messages *services.MessageService
	Hub      *services.Hub
	Log      *zap.Logger
}

func New(d Deps) *Handlers {
	return &Handlers{
		store:    d.Store,
		users:    d.Users,
		friends:  d.Friends,
		groups:   d.Groups,
		messages: d.Messages,
		hub:      d.Hub,
		log:      d.Log,
	}
}

func statusOf(err error) int {
	switch services.KindOf(err) {
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindInvalidRequest:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	h.writeErrorBody(c, err, gin.H{"error": services.MessageOf(err)})
}

func (h *Handlers) writeErrorBody(c *gin.Context, err error, body gin.H) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

// writeResult writes v under key. A record stored before a later failure,
// such as a group whose notifications could not be published, is returned
// next to the error so the caller still learns its id.
func writeResult[T any](h *Handlers, c *gin.Context, key string, v *T, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{key: v})
		return
	}
	body := gin.H{"error": services.MessageOf(err)}
	if v != nil {
		body[key] = v
	}
	h.writeErrorBody(c, err, body)
}

// caller returns the authenticated user or writes 401.
func (h *Handlers) caller(c *gin.Context) (models.User, bool) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		h.writeError(c, services.Unauthenticated("unauthorized"))
	}
	return u, ok
}

func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return services.InvalidRequest("invalid request payload")
	}
	return nil
}

// limitParam parses ?limit=, zero means the whole log.
func limitParam(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, services.InvalidRequest("invalid limit")
	}
	return n, nil
}

// run times op and records it under name.
func run(ctx context.Context, name string, op func(context.Context) error) error {
	start := time.Now()
	err := op(ctx)
	middleware.RecordOperation(name, serviceName, time.Since(start), err)
	return err
}

func (h *Handlers) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
