// api/classifier/classifier.go
package classifier

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"time"

	"amaqueme/analytics/models"
)

// SessionCookieName is the cookie that echoes the visitor session id back to
// the browser. The id is a stateless hint; there is no server-side session
// registry behind it.
const SessionCookieName = "session_id"

// uaRule pairs a predicate over a lowercased user agent with the label to
// assign. Rules are evaluated in order, first match wins, so more specific
// rules (tablet before mobile) must come first.
type uaRule struct {
	match func(ua string) bool
	label string
}

func containsAny(ua string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(ua, t) {
			return true
		}
	}
	return false
}

var deviceRules = []uaRule{
	// Android tablets carry "android" without "mobi"; this must be checked
	// before the generic mobile tokens.
	{func(ua string) bool {
		return containsAny(ua, "tablet", "ipad", "playbook", "silk") ||
			(strings.Contains(ua, "android") && !strings.Contains(ua, "mobi"))
	}, models.DeviceTablet},
	{func(ua string) bool {
		return containsAny(ua, "mobile", "iphone", "ipod", "android", "blackberry",
			"opera mini", "opera mobi", "skyfire", "maemo", "windows phone",
			"palm", "iemobile", "symbian", "fennec")
	}, models.DeviceMobile},
	{func(ua string) bool { return ua != "" }, models.DeviceDesktop},
}

var browserRules = []uaRule{
	{func(ua string) bool { return strings.Contains(ua, "firefox") }, "Firefox"},
	{func(ua string) bool { return strings.Contains(ua, "chrome") && !strings.Contains(ua, "edge") }, "Chrome"},
	{func(ua string) bool { return strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome") }, "Safari"},
	{func(ua string) bool { return strings.Contains(ua, "edge") }, "Edge"},
	{func(ua string) bool { return containsAny(ua, "opera", "opr") }, "Opera"},
}

var osRules = []uaRule{
	{func(ua string) bool { return strings.Contains(ua, "windows") }, "Windows"},
	{func(ua string) bool { return strings.Contains(ua, "mac") }, "macOS"},
	{func(ua string) bool { return strings.Contains(ua, "linux") }, "Linux"},
	{func(ua string) bool { return strings.Contains(ua, "android") }, "Android"},
	{func(ua string) bool { return containsAny(ua, "iphone", "ipad") }, "iOS"},
}

// botTokens is a deny-list of crawler fragments. Substring matching against
// the lowercased user agent; a match flags the event, it never suppresses it.
var botTokens = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "facebookexternalhit", "twitterbot", "whatsapp",
}

// knownCategorySegments are first path segments that resolve to category
// archive pages rather than posts.
var knownCategorySegments = map[string]bool{
	"noticias":   true,
	"categorias": true,
	"politica":   true,
	"economia":   true,
	"deportes":   true,
	"cultura":    true,
}

// assetExtensions is the static-asset deny-list for the trackability gate.
var assetExtensions = map[string]bool{
	"ico": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"svg": true, "css": true, "js": true,
	"woff": true, "woff2": true, "ttf": true, "eot": true,
}

// NewSessionID returns 16 random bytes hex-encoded (32 chars, 128 bits of
// entropy). Collisions are cryptographically negligible and intentionally not
// deduplicated against any registry.
func NewSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// degrade to a timestamp id rather than dropping the event.
		log.Printf("ERROR: Failed to generate random session id: %v", err)
		return "fallback_" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// SessionID reads the session cookie from the request, generating a fresh id
// when the cookie is absent or empty. The caller is responsible for echoing
// the id back as a cookie so subsequent requests reuse it.
func SessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return NewSessionID()
}

// ClientIP resolves the client address from proxy headers: first entry of
// X-Forwarded-For, then X-Real-IP, then CF-Connecting-IP, else "unknown".
// These headers are client-supplied and spoofable; the value is used for
// statistics only, never for authorization.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if ip := h.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := h.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return "unknown"
}

// DeviceType classifies a user agent as desktop/mobile/tablet/unknown.
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, r := range deviceRules {
		if r.match(ua) {
			return r.label
		}
	}
	return models.DeviceUnknown
}

// Browser returns a coarse browser label, "Other" when nothing matches.
func Browser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, r := range browserRules {
		if r.match(ua) {
			return r.label
		}
	}
	return "Other"
}

// OS returns a coarse operating system label, "Other" when nothing matches.
func OS(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, r := range osRules {
		if r.match(ua) {
			return r.label
		}
	}
	return "Other"
}

// IsBot reports whether the user agent matches any known crawler token.
// Heuristic deny-list only; an empty or novel bot UA passes as human.
func IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return containsAny(ua, botTokens...)
}

// ContentType derives the coarse content classification from the path alone,
// independent of the upstream content resolver.
func ContentType(path string) string {
	if path == "" || path == "/" {
		return models.ContentTypeHome
	}

	segments := strings.Split(path, "/")
	if len(segments) > 1 && knownCategorySegments[segments[1]] {
		return models.ContentTypeCategory
	}

	if strings.Contains(path, "/page/") || strings.Contains(path, "?page=") {
		return models.ContentTypeCategory
	}

	return models.ContentTypePost
}

// Slug extracts the canonical content key from a path.
//
//	/category/sports/page/2 -> sports
//	/category/sports        -> sports
//	/noticias/my-article    -> my-article
//	/my-article/page/3      -> my-article
//	/                       -> home
func Slug(path string) string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return "home"
	}

	categoryIdx := -1
	hasPage := false
	for i, s := range segments {
		if s == "category" && categoryIdx < 0 {
			categoryIdx = i
		}
		if s == "page" {
			hasPage = true
		}
	}

	// Paginated category routes: /category/<slug>/page/N
	if categoryIdx >= 0 && hasPage {
		if categoryIdx+1 < len(segments) {
			return segments[categoryIdx+1]
		}
		return "home"
	}

	// Plain category routes: /category/<slug>
	if segments[0] == "category" && len(segments) >= 2 {
		return segments[1]
	}

	last := segments[len(segments)-1]
	if last == "page" || isNumeric(last) {
		if len(segments) >= 2 {
			return segments[len(segments)-2]
		}
		return "home"
	}
	return last
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsTrackable is the gate deciding whether a request/response pair produces
// an event: successful render, not an internal or API path, not a static
// asset.
func IsTrackable(status int, path string) bool {
	if status != http.StatusOK {
		return false
	}
	if strings.HasPrefix(path, "/_") || strings.HasPrefix(path, "/api/") {
		return false
	}
	if ext := assetExtension(path); ext != "" && assetExtensions[ext] {
		return false
	}
	return true
}

func assetExtension(path string) string {
	last := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		last = path[i+1:]
	}
	if i := strings.LastIndex(last, "."); i >= 0 {
		return strings.ToLower(last[i+1:])
	}
	return ""
}

// Classify turns a completed request/response pair into a PageView. The
// session id is resolved by the caller up front (it has to be echoed as a
// cookie before response headers are committed). The second return is false
// when the pair is not trackable. Malformed or missing headers degrade to
// safe defaults; classification never fails outright.
func Classify(r *http.Request, status int, sessionID string, loadTime time.Duration, cc models.ContentContext) (models.PageView, bool) {
	path := r.URL.Path
	if !IsTrackable(status, path) {
		return models.PageView{}, false
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	userAgent := r.Header.Get("User-Agent")
	slug := Slug(path)
	contentType := ContentType(path)

	categorySlug := cc.CategorySlug
	if contentType == models.ContentTypeCategory {
		categorySlug = slug
	}

	if loadTime < 0 {
		loadTime = 0
	}

	return models.PageView{
		Timestamp:    time.Now().UTC(),
		SessionID:    sessionID,
		UserIP:       ClientIP(r.Header),
		UserAgent:    userAgent,
		Path:         path,
		Slug:         slug,
		ContentType:  contentType,
		PostID:       cc.PostID,
		PostTitle:    cc.PostTitle,
		CategorySlug: categorySlug,
		CategoryName: cc.CategoryName,
		Referrer:     r.Header.Get("Referer"),
		DeviceType:   DeviceType(userAgent),
		Browser:      Browser(userAgent),
		OS:           OS(userAgent),
		PageLoadMs:   uint32(loadTime.Milliseconds()),
		IsBot:        IsBot(userAgent),
	}, true
}
