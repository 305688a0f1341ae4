// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"amaqueme/analytics/models"
	"amaqueme/analytics/utils"
)

// AnalyticsReader is the read side of the analytics store as the dashboard
// endpoints consume it.
type AnalyticsReader interface {
	GetMostViewedPosts(ctx context.Context, limit, days int) ([]models.MostViewedPost, error)
	GetPostStats(ctx context.Context, slug string, days int) ([]models.DailyPostStat, error)
	GetCategoryStats(ctx context.Context, categorySlug string, days int) ([]models.DailyPostStat, error)
	GetTopCategories(ctx context.Context, limit, days int) ([]models.CategoryRank, error)
	GetDailyStats(ctx context.Context, days int) ([]models.DailySiteStat, error)
	GetTrafficSources(ctx context.Context, days, limit int) ([]models.TrafficSource, error)
}

type AnalyticsHandlers struct {
	Store AnalyticsReader
}

func NewAnalyticsHandlers(s AnalyticsReader) *AnalyticsHandlers {
	return &AnalyticsHandlers{Store: s}
}

// SummaryReport is the dashboard overview: the four headline reports fetched
// together plus their totals.
type SummaryReport struct {
	MostViewed     []models.MostViewedPost `json:"mostViewed"`
	TopCategories  []models.CategoryRank   `json:"topCategories"`
	DailyStats     []models.DailySiteStat  `json:"dailyStats"`
	TrafficSources []models.TrafficSource  `json:"trafficSources"`
	Summary        SummaryTotals           `json:"summary"`
}

type SummaryTotals struct {
	TotalViews              uint64 `json:"totalViews"`
	TotalUniqueVisitors     uint64 `json:"totalUniqueVisitors"`
	AvgViewsPerDay          uint64 `json:"avgViewsPerDay"`
	AvgUniqueVisitorsPerDay uint64 `json:"avgUniqueVisitorsPerDay"`
}

// SeriesReport wraps a per-day series for one post or category together with
// its totals, so the dashboard does not recompute them client-side.
type SeriesReport struct {
	Stats   []models.DailyPostStat `json:"stats"`
	Summary SeriesTotals           `json:"summary"`
}

type SeriesTotals struct {
	TotalViews          uint64 `json:"totalViews"`
	TotalUniqueVisitors uint64 `json:"totalUniqueVisitors"`
	AvgViewsPerDay      uint64 `json:"avgViewsPerDay"`
}

func buildSeriesReport(stats []models.DailyPostStat) *SeriesReport {
	report := &SeriesReport{Stats: stats}
	for _, day := range stats {
		report.Summary.TotalViews += day.Views
		report.Summary.TotalUniqueVisitors += day.UniqueVisitors
	}
	if n := uint64(len(stats)); n > 0 {
		report.Summary.AvgViewsPerDay = report.Summary.TotalViews / n
	}
	return report
}

// GetAnalytics serves the report selector endpoint:
// GET /api/analytics?type=<report>&days=30&limit=10. Unknown report types are
// a client error; store failures come back as a structured error, never a
// partial success.
func (h *AnalyticsHandlers) GetAnalytics(c *gin.Context) {
	reportType := c.DefaultQuery("type", "most-viewed")
	days := utils.ParseDays(c.Query("days"))
	limit := utils.ParseLimit(c.Query("limit"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var data interface{}
	var err error

	switch reportType {
	case "most-viewed":
		data, err = h.Store.GetMostViewedPosts(ctx, limit, days)
	case "top-categories":
		data, err = h.Store.GetTopCategories(ctx, limit, days)
	case "daily-stats":
		data, err = h.Store.GetDailyStats(ctx, days)
	case "post-stats":
		slug := c.Query("slug")
		if slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "slug query parameter is required for post-stats"})
			return
		}
		var stats []models.DailyPostStat
		stats, err = h.Store.GetPostStats(ctx, slug, days)
		if err == nil {
			data = buildSeriesReport(stats)
		}
	case "category-stats":
		category := c.Query("category")
		if category == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category query parameter is required for category-stats"})
			return
		}
		var stats []models.DailyPostStat
		stats, err = h.Store.GetCategoryStats(ctx, category, days)
		if err == nil {
			data = buildSeriesReport(stats)
		}
	case "traffic-sources":
		data, err = h.Store.GetTrafficSources(ctx, days, limit)
	case "summary":
		data, err = h.buildSummary(ctx, days, limit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid type parameter"})
		return
	}

	if err != nil {
		log.Printf("Error serving analytics report %q: %v", reportType, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to retrieve analytics data",
		})
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"meta": gin.H{
			"type":      reportType,
			"days":      days,
			"limit":     limit,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// buildSummary fans the four headline reports out concurrently, mirroring how
// the dashboard used to fetch them in parallel. The first store error wins;
// there is no partial summary.
func (h *AnalyticsHandlers) buildSummary(ctx context.Context, days, limit int) (*SummaryReport, error) {
	var (
		wg     sync.WaitGroup
		report SummaryReport
		errs   [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		report.MostViewed, errs[0] = h.Store.GetMostViewedPosts(ctx, limit, days)
	}()
	go func() {
		defer wg.Done()
		report.TopCategories, errs[1] = h.Store.GetTopCategories(ctx, limit, days)
	}()
	go func() {
		defer wg.Done()
		report.DailyStats, errs[2] = h.Store.GetDailyStats(ctx, days)
	}()
	go func() {
		defer wg.Done()
		report.TrafficSources, errs[3] = h.Store.GetTrafficSources(ctx, days, limit)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, day := range report.DailyStats {
		report.Summary.TotalViews += day.TotalViews
		report.Summary.TotalUniqueVisitors += day.UniqueVisitors
	}
	if n := uint64(len(report.DailyStats)); n > 0 {
		report.Summary.AvgViewsPerDay = report.Summary.TotalViews / n
		report.Summary.AvgUniqueVisitorsPerDay = report.Summary.TotalUniqueVisitors / n
	}

	return &report, nil
}
