package clclientip

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderForwardedFor   = "X-Forwarded-For"
)

// Resolve renvoie l'IP d'origine la plus probable. Ordre de priorité:
// l'en-tête Cloudflare tel quel, puis le premier élément de X-Forwarded-For,
// puis l'adresse du pair fournie par le serveur.
func Resolve(header http.Header, peer string) string {
	if cf := header.Get(HeaderCFConnectingIP); cf != "" {
		return cf
	}

	// l'en-tête peut être répété, seule la première valeur compte
	if values := header.Values(HeaderForwardedFor); len(values) > 0 {
		first, _, _ := strings.Cut(values[0], ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return peer
}

// FromContext applique Resolve sur une requête gin, le pair étant ClientIP()
// qui respecte les proxies de confiance configurés sur le moteur
func FromContext(c *gin.Context) string {
	return Resolve(c.Request.Header, c.ClientIP())
}
