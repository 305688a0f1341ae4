// api/middleware/tracking.go
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"amaqueme/analytics/classifier"
	"amaqueme/analytics/models"
	"amaqueme/analytics/tracker"
)

// ContentContextKey is where page handlers place the resolved content
// metadata (post id/title, category slug/name) for the tracking middleware
// to pick up. Optional; classification falls back to the path alone.
const ContentContextKey = "resolved_content"

const sessionMaxAge = 86400 // 24h

// TrackPageViews classifies each completed request and hands the event to the
// tracker without waiting on the insert. The session cookie is written before
// the handler runs because response headers are committed once the body
// streams; the trackability decision (which needs the response status) is
// taken afterwards, so a request that ends up untrackable may still refresh
// its cookie.
func TrackPageViews(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		sessionID := classifier.SessionID(c.Request)
		if classifier.IsTrackable(http.StatusOK, path) {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(classifier.SessionCookieName, sessionID, sessionMaxAge, "/", "", false, true)
		}

		c.Next()

		event, ok := classifier.Classify(c.Request, c.Writer.Status(), sessionID, time.Since(start), contentContext(c))
		if !ok {
			return
		}
		t.Enqueue(event)
	}
}

func contentContext(c *gin.Context) models.ContentContext {
	if v, ok := c.Get(ContentContextKey); ok {
		if cc, ok := v.(models.ContentContext); ok {
			return cc
		}
	}
	return models.ContentContext{}
}
