package chatws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lunir/lunir/internal/auth"
	"github.com/lunir/lunir/internal/config"
	"github.com/lunir/lunir/internal/core"
	"github.com/lunir/lunir/internal/domain"
	"github.com/lunir/lunir/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the chat WebSocket endpoint: handshake, auth, and the
// per-connection read loop dispatching inbound events.
type Controller struct {
	cfg       *config.Config
	verifier  *auth.TokenManager
	lifecycle *core.Lifecycle
	stores    store.Stores
	limiter   *MessageRateLimiter
}

func NewController(cfg *config.Config, verifier *auth.TokenManager, lifecycle *core.Lifecycle, stores store.Stores) *Controller {
	return &Controller{
		cfg:       cfg,
		verifier:  verifier,
		lifecycle: lifecycle,
		stores:    stores,
		limiter:   NewMessageRateLimiter(cfg.MsgRateLimit, cfg.MsgRateWindow),
	}
}

// session is one admitted connection plus the room it connected into.
type session struct {
	conn *core.Connection
	ws   *wsConn
	room domain.RoomID
}

// HandleChat upgrades /ws/chat?token=&room_id= and drives the connection
// until it closes. Rejections surface as distinct close codes so clients can
// tell auth failures from membership failures.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Msg("ws upgrade")
		return
	}
	ws := newWSConn(conn, ctl.cfg.SendBuffer)

	user, err := ctl.verifier.Verify(c.Query("token"))
	if err != nil {
		log.Warn().Str("module", "chatws").Msg("ws auth rejected")
		ws.Close(core.CloseAuthFailed, "authentication failed")
		return
	}

	roomID := domain.RoomID(c.Query("room_id"))
	member, err := ctl.stores.Membership.IsMember(c.Request.Context(), user.ID, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Str("user_id", string(user.ID)).Msg("membership lookup failed")
		ws.Close(websocket.CloseInternalServerErr, "membership lookup failed")
		return
	}
	if !member {
		ws.Close(core.CloseNotMember, "not a member of this room")
		return
	}

	sess := &session{conn: core.NewConnection(user, ws), ws: ws, room: roomID}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Admission runs before the first read so the join event precedes any
	// message this client sends.
	ctl.lifecycle.Connect(sess.conn, roomID)
	log.Info().Str("module", "chatws").Str("user_id", string(user.ID)).
		Str("room_id", string(roomID)).Msg("ws connected")

	go ws.writePump(ctx, ctl.cfg.PingPeriod)
	ctl.readPump(ctx, sess)
}

// finishSession runs the disconnect teardown when a read pump exits. The
// rate-limit window is dropped only when no successor owns the registry
// entry: a superseded session's exit must not reset its replacement's window.
func (ctl *Controller) finishSession(sess *session) {
	ctl.lifecycle.Disconnect(sess.conn)
	if ctl.lifecycle.Registry().Lookup(sess.conn.UserID()) == nil {
		ctl.limiter.Forget(sess.conn.UserID())
	}
	log.Info().Str("module", "chatws").Str("user_id", string(sess.conn.UserID())).Msg("readPump closing")
}

func (ctl *Controller) readPump(ctx context.Context, sess *session) {
	defer ctl.finishSession(sess)

	sess.ws.conn.SetReadLimit(ctl.cfg.ReadLimit)
	readTimeout := ctl.cfg.PingPeriod + writeTimeout
	_ = sess.ws.conn.SetReadDeadline(time.Now().Add(readTimeout))
	sess.ws.conn.SetPongHandler(func(string) error {
		return sess.ws.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.ws.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "chatws").
						Str("user_id", string(sess.conn.UserID())).Msg("readPump read error")
				}
				return
			}
			_ = sess.ws.conn.SetReadDeadline(time.Now().Add(readTimeout))
			ctl.handleFrame(ctx, sess, data)
		}
	}
}
