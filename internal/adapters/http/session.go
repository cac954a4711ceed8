package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pulse/internal/app/auth"
)

const sessionIDKey = "sid"

func genSessionID() string {
	return uuid.NewString()
}

// SessionIDMiddleware makes sure every visitor carries a signed session id
// cookie. The websocket handshake later resolves the same id.
func SessionIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		sid, _ := sess.Get(auth.SessionIDKey).(string)
		if sid == "" {
			sid = genSessionID()
			sess.Set(auth.SessionIDKey, sid)
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session cookie")
			}
		}
		c.Set(sessionIDKey, sid)
		c.Next()
	}
}
