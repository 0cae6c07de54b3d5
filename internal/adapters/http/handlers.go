package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lunir/lunir/internal/core"
	"github.com/lunir/lunir/internal/domain"
	"github.com/lunir/lunir/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Handlers serves the REST surface around the live chat core.
type Handlers struct {
	stores    store.Stores
	lifecycle *core.Lifecycle
}

func NewHandlers(stores store.Stores, lifecycle *core.Lifecycle) *Handlers {
	return &Handlers{stores: stores, lifecycle: lifecycle}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"is_private"`
}

func (h *Handlers) listRooms(c *gin.Context) {
	user := currentUser(c)
	rooms, err := h.stores.Rooms.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handlers) createRoom(c *gin.Context) {
	user := currentUser(c)
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	name, err := domain.ValidateRoomName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.stores.Rooms.Create(c.Request.Context(), name, strings.TrimSpace(req.Description), req.Private, user)
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	// Public rooms are announced to every live connection.
	if !room.Private {
		h.lifecycle.Broadcaster().BroadcastAll(core.NewEvent(core.EventRoomCreated, gin.H{
			"room":       room,
			"created_by": user,
		}))
	}

	c.JSON(http.StatusOK, store.RoomSummary{Room: room, MemberCount: 1})
}

func (h *Handlers) getRoom(c *gin.Context) {
	user := currentUser(c)
	roomID := domain.RoomID(c.Param("id"))
	ctx := c.Request.Context()

	member, err := h.stores.Membership.IsMember(ctx, user.ID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return
	}

	room, err := h.stores.Rooms.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	members, err := h.stores.Membership.Members(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "members": members})
}

func (h *Handlers) joinRoom(c *gin.Context) {
	user := currentUser(c)
	roomID := domain.RoomID(c.Param("id"))
	ctx := c.Request.Context()

	room, err := h.stores.Rooms.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	if room.Private {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot join private room"})
		return
	}

	joined, err := h.stores.Membership.Join(ctx, user, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		return
	}
	if !joined {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already a member of this room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "successfully joined room"})
}

func (h *Handlers) leaveRoom(c *gin.Context) {
	user := currentUser(c)
	roomID := domain.RoomID(c.Param("id"))

	left, err := h.stores.Membership.Leave(c.Request.Context(), user.ID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave room"})
		return
	}
	if !left {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a member of this room"})
		return
	}

	// Drop the live subscription too, if this user is connected.
	if conn := h.lifecycle.Registry().Lookup(user.ID); conn != nil {
		h.lifecycle.LeaveRoom(conn, roomID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "successfully left room"})
}

func (h *Handlers) roomMessages(c *gin.Context) {
	user := currentUser(c)
	roomID := domain.RoomID(c.Param("id"))
	ctx := c.Request.Context()

	member, err := h.stores.Membership.IsMember(ctx, user.ID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership lookup failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	msgs, err := h.stores.Messages.ListRoom(ctx, roomID, limit, domain.MessageID(c.Query("before_id")))
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_connections": h.lifecycle.Registry().Count(),
		"active_rooms":       h.lifecycle.Index().RoomCount(),
		"user_id":            currentUser(c).ID,
	})
}
