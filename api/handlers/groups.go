package handlers

import (
	"context"
	"net/http"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/services"

	"github.com/gin-gonic/gin"
)

type groupMemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type groupMessageRequest struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

func (h *Handlers) CreateGroup(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req services.CreateGroupInput
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	var group *models.Group
	err := run(c.Request.Context(), "group_create", func(ctx context.Context) (err error) {
		group, err = h.groups.CreateGroup(ctx, u.ID, req)
		return err
	})
	writeResult(h, c, "group", group, err)
}

func (h *Handlers) MakeAdmin(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req groupMemberRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	var group *models.Group
	err := run(c.Request.Context(), "group_make_admin", func(ctx context.Context) (err error) {
		group, err = h.groups.MakeAdmin(ctx, u.ID, req.GroupID, req.UserID)
		return err
	})
	writeResult(h, c, "group", group, err)
}

func (h *Handlers) RemoveMember(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req groupMemberRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	var group *models.Group
	err := run(c.Request.Context(), "group_remove_member", func(ctx context.Context) (err error) {
		group, err = h.groups.RemoveMember(ctx, u.ID, req.GroupID, req.UserID)
		return err
	})
	writeResult(h, c, "group", group, err)
}

func (h *Handlers) SendGroupMessage(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	var req groupMessageRequest
	if err := bind(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	var msg *models.GroupMessage
	err := run(c.Request.Context(), "group_message", func(ctx context.Context) (err error) {
		msg, err = h.messages.SendGroupMessage(ctx, u.ID, req.GroupID, req.Text)
		return err
	})
	writeResult(h, c, "message", msg, err)
}

func (h *Handlers) ListGroups(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	groups, err := h.groups.ListGroups(c.Request.Context(), u.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *Handlers) GetGroup(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	group, err := h.groups.GetGroup(c.Request.Context(), u.ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	members, err := h.users.GetMany(c.Request.Context(), group.Members)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "members": members})
}

// ListGroupMessages returns the group log newest first.
func (h *Handlers) ListGroupMessages(c *gin.Context) {
	u, ok := h.caller(c)
	if !ok {
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	groupID := c.Param("id")
	member, err := h.groups.IsGroupMember(c.Request.Context(), groupID, u.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !member {
		h.writeError(c, services.Forbidden("you are not a member of this group"))
		return
	}
	messages, err := h.messages.ListGroupMessages(c.Request.Context(), groupID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": services.ForDisplay(messages)})
}
