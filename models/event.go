// api/models/event.go
package models

import (
	"time"
)

// Content types for a tracked path. Values match the ClickHouse Enum8
// definition on page_views.content_type.
const (
	ContentTypePost     = "post"
	ContentTypeCategory = "category"
	ContentTypePage     = "page"
	ContentTypeHome     = "home"
	ContentTypeOther    = "other"
)

// Device types, matching the Enum8 on page_views.device_type.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

// PageView is one immutable record of a tracked page render. It is built by
// the classifier at request time and never modified afterwards.
type PageView struct {
	EventID      string    `json:"eventId"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"sessionId"`
	UserIP       string    `json:"userIp"`
	UserAgent    string    `json:"userAgent"`
	Path         string    `json:"path"`
	Slug         string    `json:"slug"`
	ContentType  string    `json:"contentType"`
	PostID       string    `json:"postId,omitempty"`
	PostTitle    string    `json:"postTitle,omitempty"`
	CategorySlug string    `json:"categorySlug,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	DeviceType   string    `json:"deviceType"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	PageLoadMs   uint32    `json:"pageLoadMs"`
	IsBot        bool      `json:"isBot"`
}

// ContentContext carries the metadata the upstream content resolver attaches
// to a request. All fields are optional; the classifier falls back to
// path-derived values when they are absent.
type ContentContext struct {
	PostID       string
	PostTitle    string
	CategorySlug string
	CategoryName string
}

// Report row shapes returned by the analytics store.

type MostViewedPost struct {
	Slug           string `json:"slug"`
	PostID         string `json:"postId"`
	PostTitle      string `json:"postTitle"`
	Views          uint64 `json:"views"`
	UniqueVisitors uint64 `json:"uniqueVisitors"`
}

type DailyPostStat struct {
	Date           time.Time `json:"date"`
	Views          uint64    `json:"views"`
	UniqueVisitors uint64    `json:"uniqueVisitors"`
}

type CategoryRank struct {
	CategorySlug   string `json:"categorySlug"`
	CategoryName   string `json:"categoryName"`
	Views          uint64 `json:"views"`
	UniqueVisitors uint64 `json:"uniqueVisitors"`
}

type DailySiteStat struct {
	Date           time.Time `json:"date"`
	TotalViews     uint64    `json:"totalViews"`
	UniqueVisitors uint64    `json:"uniqueVisitors"`
	PostViews      uint64    `json:"postViews"`
	CategoryViews  uint64    `json:"categoryViews"`
	MobileViews    uint64    `json:"mobileViews"`
	DesktopViews   uint64    `json:"desktopViews"`
}

type TrafficSource struct {
	Referrer       string `json:"referrer"`
	Views          uint64 `json:"views"`
	UniqueVisitors uint64 `json:"uniqueVisitors"`
}
