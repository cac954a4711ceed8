package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/pulse/internal/app/auth"
	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

var errForbidden = errors.New("administrator only")

type presenceHandlers struct {
	tracker *presence.Tracker
	auth    *auth.Authenticator
	authz   core.Authorizer
}

// requester is anonymous whenever the cookie cannot be resolved.
func (h *presenceHandlers) requester(c *gin.Context) domain.Identity {
	id, err := h.auth.Authenticate(c.Request.Context(), c.Request)
	if err != nil {
		return domain.Anonymous
	}
	return id
}

func (h *presenceHandlers) session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sid": c.GetString(sessionIDKey),
		"uid": h.requester(c).UID,
	})
}

func (h *presenceHandlers) online(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"sockets": h.tracker.SocketCount(),
		"users":   h.tracker.OnlineUserCount(),
		"guests":  h.tracker.OnlineGuestCount(ctx),
	})
}

// usersOnline answers ?uids=1,2,3 with one flag per uid, in order.
func (h *presenceHandlers) usersOnline(c *gin.Context) {
	raw := splitList(c.Query("uids"))
	uids := make([]domain.UserID, 0, len(raw))
	for _, s := range raw {
		uid, err := domain.ParseUserID(s)
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		uids = append(uids, uid)
	}
	c.JSON(http.StatusOK, gin.H{
		"uids":   uids,
		"online": h.tracker.IsUsersOnline(c.Request.Context(), uids),
	})
}

func (h *presenceHandlers) roomUsers(c *gin.Context) {
	res, err := h.tracker.UsersInRoom(c.Request.Context(), h.requester(c).UID, domain.RoomName(c.Param("room")))
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *presenceHandlers) logout(c *gin.Context) {
	ctx := c.Request.Context()
	me := h.requester(c)
	if !me.IsAuthenticated() {
		abortError(c, http.StatusUnauthorized, auth.ErrNotAuthorized)
		return
	}
	isAdmin, err := h.authz.IsAdministrator(ctx, me.UID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if !isAdmin {
		abortError(c, http.StatusForbidden, errForbidden)
		return
	}
	uid, err := domain.ParseUserID(c.Param("uid"))
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	res := h.tracker.LogoutUser(uid)
	c.JSON(http.StatusOK, gin.H{"sentTo": res.SentTo})
}
