package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/weiwei-tsao/grocery-price-compare/internal/business/pipeline"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
)

const defaultRunsLimit = 20

// Router wires HTTP handlers.
type Router struct {
	service *pipeline.Service
	stores  pipeline.Stores
	markets *markets.Registry
	metrics http.Handler
	log     log.FieldLogger
	origins string
}

// Options are the optional pieces of the router.
type Options struct {
	Metrics        http.Handler
	Logger         log.FieldLogger
	AllowedOrigins string
}

func NewRouter(service *pipeline.Service, registry *markets.Registry, opts Options) *gin.Engine {
	r := &Router{
		service: service,
		stores:  service.Stores(),
		markets: registry,
		metrics: opts.Metrics,
		log:     opts.Logger,
		origins: opts.AllowedOrigins,
	}
	if r.log == nil {
		r.log = log.StandardLogger()
	}

	router := gin.New()
	router.Use(r.requestLogger(), gin.Recovery(), r.corsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "parserVersion": service.Pipeline().ParserVersion()})
	})
	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/markets", r.listMarkets)
		api.POST("/offers/process", r.processOffers)
		api.GET("/offers", r.listOffers)
		api.POST("/offers/compare", r.compareOffers)
		api.GET("/offers/export", r.exportOffers)
		api.GET("/stats", r.getStats)
		api.POST("/collect", r.collect)
		api.POST("/reprocess", r.reprocess)
		api.GET("/runs", r.listRuns)
		api.GET("/runs/active", r.activeRuns)
		api.GET("/runs/:id", r.getRun)
		api.POST("/runs/:id/cancel", r.cancelRun)
	}

	return router
}

func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Microsecond).String(),
		}).Debug("request")
	}
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	origins := strings.Split(r.origins, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if t := strings.TrimSpace(o); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		for _, o := range trimmed {
			if o == "*" || o == origin {
				allowed = origin
				break
			}
		}
		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *Router) listMarkets(c *gin.Context) {
	type marketView struct {
		ID          string         `json:"id"`
		Name        string         `json:"name"`
		Status      markets.Status `json:"status"`
		RequiresCEP bool           `json:"requiresCep"`
	}
	var items []marketView
	for _, m := range r.markets.Active() {
		items = append(items, marketView{ID: m.ID, Name: m.DisplayName, Status: m.Status, RequiresCEP: m.RequiresCEP})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type processReq struct {
	Records []model.RawRecord `json:"records"`
}

// processOffers prices records without persisting anything.
func (r *Router) processOffers(c *gin.Context) {
	var req processReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	p := r.service.Pipeline()
	start := time.Now()
	result := p.ProcessConcurrent(c.Request.Context(), req.Records, 0)
	p.Report(result, time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"offers":     result.Offers,
		"statistics": pipeline.Statistics(result.Offers),
		"dropped":    len(result.Failures),
	})
}

func offerQuery(c *gin.Context) model.OfferQuery {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return model.OfferQuery{
		SearchQuery:    c.Query("query"),
		MarketID:       c.Query("market"),
		ComparableOnly: c.Query("comparableOnly") == "true",
		Limit:          limit,
	}
}

func (r *Router) listOffers(c *gin.Context) {
	offers, err := r.stores.Offers.ListOffers(c.Request.Context(), offerQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ascending := c.DefaultQuery("order", "asc") != "desc"
	ranked := r.service.Pipeline().Calculator().CompareOffers(offers, ascending)
	c.JSON(http.StatusOK, gin.H{"items": ranked, "total": len(ranked)})
}

type compareReq struct {
	SearchQuery string            `json:"searchQuery"`
	MarketID    string            `json:"marketId"`
	Records     []model.RawRecord `json:"records"`
}

// compareOffers ranks either the posted records or the stored offers for a query, and reports
// the savings of the best offer against every other comparable one in the same unit.
func (r *Router) compareOffers(c *gin.Context) {
	var req compareReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var offers []model.PriceOffer
	if len(req.Records) > 0 {
		offers = r.service.Pipeline().ProcessAll(req.Records).Offers
	} else {
		if req.SearchQuery == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "searchQuery or records is required"})
			return
		}
		var err error
		offers, err = r.stores.Offers.ListOffers(c.Request.Context(), model.OfferQuery{SearchQuery: req.SearchQuery, MarketID: req.MarketID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	calc := r.service.Pipeline().Calculator()
	ranked := calc.CompareOffers(offers, true)
	resp := gin.H{"items": ranked, "total": len(ranked)}
	best, ok := calc.FindBestOffer(offers)
	if !ok {
		c.JSON(http.StatusOK, resp)
		return
	}
	savings := []model.Savings{}
	for _, o := range ranked {
		if o.ID == best.ID {
			continue
		}
		if s, ok := calc.CalculateSavings(best, o); ok {
			savings = append(savings, s)
		}
	}
	resp["best"] = best
	resp["savings"] = savings
	c.JSON(http.StatusOK, resp)
}

func (r *Router) exportOffers(c *gin.Context) {
	offers, err := r.stores.Offers.ListOffers(c.Request.Context(), offerQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ranked := r.service.Pipeline().Calculator().CompareOffers(offers, true)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=offers.csv")
	if err := pipeline.WriteOffersCSV(c.Writer, ranked); err != nil {
		r.log.WithError(err).Error("export offers")
		c.Status(http.StatusInternalServerError)
	}
}

// getStats returns stored statistics for a query, computing them from stored offers when
// none were saved.
func (r *Router) getStats(c *gin.Context) {
	query := c.Query("query")
	ctx := c.Request.Context()
	if r.stores.Stats != nil && query != "" {
		stats, err := r.stores.Stats.GetStatistics(ctx, query)
		if err == nil {
			c.JSON(http.StatusOK, stats)
			return
		}
		if !errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	offers, err := r.stores.Offers.ListOffers(ctx, model.OfferQuery{SearchQuery: query})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pipeline.Statistics(offers))
}

func (r *Router) collect(c *gin.Context) {
	var req pipeline.CollectRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	for _, id := range req.Markets {
		if _, err := r.markets.Lookup(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "knownMarkets": r.markets.IDs()})
			return
		}
	}

	if c.Query("async") == "true" {
		runID, err := r.service.StartCollect(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"runId":   runID,
			"message": "Collection started. Check status with GET /api/runs/" + runID,
		})
		return
	}

	res, err := r.service.Collect(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": res.Run})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) reprocess(c *gin.Context) {
	var opts pipeline.ReprocessOptions
	if err := c.BindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	runID, err := r.service.StartReprocess(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"runId":   runID,
		"message": "Reprocessing started. Check status with GET /api/runs/" + runID,
	})
}

func (r *Router) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit)))
	if err != nil || limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := r.stores.Runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}

func (r *Router) activeRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": r.service.Jobs().Running()})
}

func (r *Router) getRun(c *gin.Context) {
	run, err := r.stores.Runs.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (r *Router) cancelRun(c *gin.Context) {
	runID := c.Param("id")
	if !r.service.Cancel(runID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run " + runID + " is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": runID, "cancelled": true})
}
