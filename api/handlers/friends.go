package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type addFriendRequest struct {
	Email string `json:"email"`
}

type friendIDRequest struct {
	ID string `json:"id"`
}

func (h *Handlers) AddFriend(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req addFriendRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	err := run(c.Request.Context(), "friend_request", func(ctx context.Context) error {
		return h.friends.SendFriendRequest(ctx, u.ID, req.Email)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request sent"})
}

func (h *Handlers) AcceptFriend(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req friendIDRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	err := run(c.Request.Context(), "friend_accept", func(ctx context.Context) error {
		return h.friends.AcceptFriendRequest(ctx, u.ID, req.ID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

func (h *Handlers) DenyFriend(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req friendIDRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	err := run(c.Request.Context(), "friend_deny", func(ctx context.Context) error {
		return h.friends.DenyFriendRequest(ctx, u.ID, req.ID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request denied"})
}

func (h *Handlers) ListFriends(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	friends, err := h.friends.ListFriends(c.Request.Context(), u.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *Handlers) ListFriendRequests(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	requests, err := h.friends.ListIncomingRequests(c.Request.Context(), u.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
