package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradelab/internal/backtest"
	"tradelab/internal/insight"
	"tradelab/internal/journal"
	"tradelab/internal/market"
	"tradelab/internal/pkg/faults"
	"tradelab/internal/playbook"
	"tradelab/internal/report"
	"tradelab/internal/risk"
)

// Server 暴露风险计算、交易日志与回测的 HTTP API。
type Server struct {
	addr      string
	engine    *backtest.Engine
	results   *backtest.ResultStore
	journal   *journal.Store
	playbooks *playbook.Registry
	insight   *insight.Service
	router    *gin.Engine
}

// Config 描述 HTTP Server 的依赖，engine 为必填。
type Config struct {
	Addr      string
	Engine    *backtest.Engine
	Results   *backtest.ResultStore
	Journal   *journal.Store
	Playbooks *playbook.Registry
	Insight   *insight.Service
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("backtest engine 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		engine:    cfg.Engine,
		results:   cfg.Results,
		journal:   cfg.Journal,
		playbooks: cfg.Playbooks,
		insight:   cfg.Insight,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

// Router 暴露给测试用。
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/timeframes", s.handleTimeframes)
	api.GET("/playbooks", s.handlePlaybooks)
	api.POST("/risk/compute", s.handleRiskCompute)

	j := api.Group("/journal")
	j.POST("", s.handleJournalCreate)
	j.GET("", s.handleJournalList)
	j.GET("/:id", s.handleJournalGet)
	j.PATCH("/:id", s.handleJournalUpdate)
	j.DELETE("/:id", s.handleJournalDelete)

	b := api.Group("/backtest")
	b.POST("/runs", s.handleRunStart)
	b.GET("/runs", s.handleRunList)
	b.GET("/runs/:id", s.handleRunDetail)
	b.GET("/runs/:id/trades", s.handleRunTrades)
	b.GET("/runs/:id/equity", s.handleRunEquity)
	b.GET("/runs/:id/chart", s.handleRunChart)
	b.POST("/runs/:id/insight", s.handleRunInsight)
}

// writeError 按错误类型映射状态码：校验 400、数据不足 422、未找到 404。
func writeError(c *gin.Context, err error) {
	switch {
	case faults.IsValidation(err), faults.IsConfiguration(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case faults.IsInsufficientData(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, journal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timeframes": market.SupportedTimeframes()})
}

func (s *Server) handlePlaybooks(c *gin.Context) {
	if s.playbooks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "playbook registry 未启用"})
		return
	}
	snap := s.playbooks.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"playbooks": snap.Templates,
	})
}

func (s *Server) handleRiskCompute(c *gin.Context) {
	var req risk.TradeParameters
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := risk.Compute(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ------------------------------- Journal --------------------------------

func (s *Server) requireJournal(c *gin.Context) bool {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal 存储未启用"})
		return false
	}
	return true
}

func (s *Server) handleJournalCreate(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	var req struct {
		Symbol    string                `json:"symbol" binding:"required"`
		Direction string                `json:"direction"`
		Status    journal.Status        `json:"status"`
		Risk      *risk.TradeParameters `json:"risk"`
		Notes     string                `json:"notes"`
		Tags      []string              `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry := journal.Entry{
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Status:    req.Status,
		Notes:     req.Notes,
		Tags:      req.Tags,
	}
	// 日志里存的是计算结果快照，而不是原始参数
	if req.Risk != nil {
		result, err := risk.Compute(*req.Risk)
		if err != nil {
			writeError(c, err)
			return
		}
		entry.Risk = &result
	}
	created, err := s.journal.Create(c.Request.Context(), entry)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": created})
}

func (s *Server) handleJournalList(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	entries, err := s.journal.List(c.Request.Context(), journal.ListFilter{
		Symbol: c.Query("symbol"),
		Status: journal.Status(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id 非法"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleJournalGet(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	entry, err := s.journal.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (s *Server) handleJournalUpdate(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var upd journal.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := s.journal.Update(c.Request.Context(), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (s *Server) handleJournalDelete(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.journal.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ------------------------------- Backtest -------------------------------

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.Params
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Playbook != "" {
		if err := s.applyPlaybook(&req); err != nil {
			writeError(c, err)
			return
		}
	}
	rep, err := s.engine.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

// applyPlaybook 用剧本模板填充请求里缺省的规则与风控参数。
// 请求里显式给出的字段优先于模板，覆盖值要过模板 schema。
func (s *Server) applyPlaybook(req *backtest.Params) error {
	if s.playbooks == nil {
		return faults.Configurationf("playbook registry 未启用")
	}
	overrides := map[string]any{}
	if req.StopLossPct != 0 {
		overrides["stop_loss_pct"] = req.StopLossPct
	}
	if req.TakeProfitPct != 0 {
		overrides["take_profit_pct"] = req.TakeProfitPct
	}
	tpl, err := s.playbooks.Resolve(req.Playbook, overrides)
	if err != nil {
		return err
	}
	if req.Rules == "" {
		req.Rules = tpl.Rules
	}
	if req.StopLossPct == 0 {
		req.StopLossPct = tpl.StopLossPct
	}
	if req.TakeProfitPct == 0 {
		req.TakeProfitPct = tpl.TakeProfitPct
	}
	return nil
}

func (s *Server) requireResults(c *gin.Context) bool {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return false
	}
	return true
}

func (s *Server) handleRunList(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	equity, err := s.results.ListEquity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

// handleRunChart 用落库的 seed 重放行情并渲染 HTML 图表。
func (s *Server) handleRunChart(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	ctx := c.Request.Context()
	run, err := s.results.GetRun(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	candles, err := s.engine.Regenerate(run)
	if err != nil {
		writeError(c, err)
		return
	}
	equity, err := s.results.ListEquity(ctx, run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.results.ListTrades(ctx, run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.RenderHTML(c.Writer, report.ChartInput{
		Run:     run,
		Candles: candles,
		Equity:  equity,
		Trades:  trades,
	}); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) handleRunInsight(c *gin.Context) {
	if !s.requireResults(c) {
		return
	}
	if s.insight == nil || !s.insight.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "insight 未启用"})
		return
	}
	ctx := c.Request.Context()
	run, err := s.results.GetRun(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.results.ListTrades(ctx, run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	review, err := s.insight.Review(ctx, run, trades)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"review": review})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
