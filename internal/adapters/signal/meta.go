package signal

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// RequestMeta is what handlers may learn about the handshake request.
type RequestMeta struct {
	RemoteAddr string `json:"ip"`
	Host       string `json:"host"`
	Secure     bool   `json:"secure"`
	UserAgent  string `json:"userAgent,omitempty"`
}

// MetaFromContext takes the client address from gin, which honors
// forwarding headers only when the peer is a trusted proxy. The forwarded
// scheme is believed under the same condition.
func MetaFromContext(c *gin.Context) RequestMeta {
	r := c.Request
	ip := c.ClientIP()
	forwarded := ip != c.RemoteIP()
	return RequestMeta{
		RemoteAddr: ip,
		Host:       r.Host,
		Secure:     r.TLS != nil || (forwarded && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")),
		UserAgent:  r.UserAgent(),
	}
}
