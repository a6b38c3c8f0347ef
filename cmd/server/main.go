// Command server exposes the grid backtester over gRPC and REST, reading
// bars from ClickHouse and serving results as JSON or Arrow IPC.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "gridbacktest/proto"
	"gridbacktest/services/arrowexport"
	"gridbacktest/services/clickhouse"
	"gridbacktest/services/config"
	"gridbacktest/services/engine"
	"gridbacktest/services/monitoring"
)

// BacktestService implements the gRPC surface and backs the REST handlers.
type BacktestService struct {
	pb.UnimplementedBacktestServiceServer

	clickhouse *clickhouse.Client
	exporter   *arrowexport.Exporter
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	config     *config.Config

	mu      sync.RWMutex
	results map[string]*storedRun
}

// storedRun keeps the full report alongside the wire response so the Arrow
// endpoints can serialize lazily.
type storedRun struct {
	response *pb.BacktestResponse
	report   *engine.Report
}

func NewBacktestService(cfg *config.Config, logger *zap.Logger) (*BacktestService, error) {
	chClient, err := clickhouse.NewClient(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create ClickHouse client: %w", err)
	}

	return &BacktestService{
		clickhouse: chClient,
		exporter:   arrowexport.NewExporter(logger),
		metrics:    monitoring.NewMetrics(),
		logger:     logger,
		config:     cfg,
		results:    make(map[string]*storedRun),
	}, nil
}

// ExecuteBacktest implements the gRPC ExecuteBacktest method.
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *pb.BacktestRequest) (*pb.BacktestResponse, error) {
	bars, err := s.clickhouse.LoadBars(ctx, req.Symbol, req.Interval, req.FromMs, req.ToMs)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	return s.runBacktest(ctx, req, bars)
}

// ExecuteSweep implements the gRPC ExecuteSweep method: the bar series is
// loaded once and shared read-only across parallel runs.
func (s *BacktestService) ExecuteSweep(ctx context.Context, req *pb.SweepRequest) (*pb.SweepResponse, error) {
	bars, err := s.clickhouse.LoadBars(ctx, req.Symbol, req.Interval, req.FromMs, req.ToMs)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	numWorkers := s.config.Engine.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	sweepID := uuid.New().String()
	s.logger.Info("starting sweep",
		zap.String("sweep_id", sweepID),
		zap.Int("candidates", len(req.Candidates)),
		zap.Int("workers", numWorkers),
	)

	jobs := make(chan int, len(req.Candidates))
	results := make([]*pb.BacktestResponse, len(req.Candidates))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := req.Candidates[i]
				resp, err := s.runBacktest(ctx, &c, bars)
				if err != nil {
					s.logger.Warn("sweep candidate failed",
						zap.String("sweep_id", sweepID),
						zap.Int("candidate", i),
						zap.Error(err),
					)
					continue
				}
				results[i] = resp
			}
		}()
	}
	for i := range req.Candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	resp := &pb.SweepResponse{SweepID: sweepID}
	for _, r := range results {
		if r != nil {
			resp.Results = append(resp.Results, r)
		}
	}
	return resp, nil
}

func (s *BacktestService) runBacktest(ctx context.Context, req *pb.BacktestRequest, bars []engine.Bar) (*pb.BacktestResponse, error) {
	cfg, err := requestToConfig(req, s.config.Engine.ChunkSize)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	start := time.Now()
	s.metrics.RunStarted()

	s.logger.Info("starting backtest",
		zap.String("run_id", runID),
		zap.String("symbol", req.Symbol),
		zap.String("grid_type", cfg.GridType.String()),
		zap.Int("bars", len(bars)),
	)

	rep, err := engine.Execute(ctx, cfg, bars)
	if err != nil {
		s.metrics.RunFailed(cfg.GridType.String(), time.Since(start))
		s.logger.Error("backtest failed", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.RunFinished(cfg.GridType.String(), elapsed, rep.Summary.TotalTrades, rep.Summary.BarsProcessed)

	resp := reportToResponse(runID, req.Symbol, elapsed, rep)
	s.mu.Lock()
	s.results[runID] = &storedRun{response: resp, report: rep}
	s.mu.Unlock()

	if err := s.clickhouse.SaveReport(ctx, runID, req.Symbol, rep); err != nil {
		// persistence is best-effort; the result is still served from memory
		s.logger.Warn("persist run", zap.String("run_id", runID), zap.Error(err))
	}

	s.logger.Info("backtest complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", elapsed),
		zap.Int("trades", rep.Summary.TotalTrades),
	)
	return resp, nil
}

func (s *BacktestService) lookup(runID string) (*storedRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.results[runID]
	return run, ok
}

func requestToConfig(req *pb.BacktestRequest, defaultChunk int) (engine.Config, error) {
	var cfg engine.Config
	var err error
	if cfg.GridType, err = engine.ParseGridType(req.GridType); err != nil {
		return cfg, err
	}
	if cfg.Spacing, err = engine.ParseSpacingModel(req.SpacingModel); err != nil {
		return cfg, err
	}
	if cfg.Retention, err = engine.ParseRetentionMode(req.RetentionMode); err != nil {
		return cfg, err
	}
	if cfg.FilterWindow, err = engine.ParseEntryFilter(req.EntryFilter); err != nil {
		return cfg, err
	}
	if cfg.Funding, err = engine.ParseFundingMode(req.FundingMode); err != nil {
		return cfg, err
	}
	cfg.GridSize = req.GridSize
	cfg.Anchor = req.Anchor
	cfg.TradeValue = req.TradeValue
	cfg.InitialCash = req.InitialCash
	cfg.FractionalShares = req.FractionalShares
	cfg.TickSize = req.TickSize
	cfg.ChunkSize = defaultChunk
	return cfg, nil
}

func reportToResponse(runID, symbol string, elapsed time.Duration, rep *engine.Report) *pb.BacktestResponse {
	s := rep.Summary
	resp := &pb.BacktestResponse{
		RunID:           runID,
		Symbol:          symbol,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Summary: &pb.RunSummary{
			TotalTrades:        s.TotalTrades,
			NetRealizedProfit:  s.NetRealizedProfit,
			FinalEquity:        s.FinalEquity,
			FinalCash:          s.FinalCash,
			FinalShares:        s.FinalShares,
			RetainedShares:     s.RetainedShares,
			AverageROIPct:      s.AverageROIPct,
			MaxDrawdown:        s.MaxDrawdown,
			MaxDrawdownPct:     s.MaxDrawdownPct,
			CapitalContributed: s.CapitalContributed,
			RequiredCapital:    s.RequiredCapital,
			CAGRPct:            s.CAGRPct,
			FundingRejections:  s.FundingRejections,
			FilterRejections:   s.FilterRejections,
			BarsProcessed:      s.BarsProcessed,
		},
	}
	for _, t := range rep.Trades {
		resp.Trades = append(resp.Trades, pb.TradeRecord{
			BuyTimeMs:      t.BuyTimestamp,
			BuyPrice:       t.BuyPrice,
			BuyQty:         t.BuyQty,
			SellTimeMs:     t.SellTimestamp,
			SellPrice:      t.SellPrice,
			SellQty:        t.SellQty,
			QtyRetained:    t.QtyRetained,
			RealizedProfit: t.RealizedProfit,
			ROIPct:         t.ROIPct,
		})
	}
	for _, p := range rep.Equity {
		resp.Equity = append(resp.Equity, pb.EquityPoint{TimeMs: p.Timestamp, Equity: p.Equity})
	}
	return resp
}

// HTTP handlers for the REST API
func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:run_id", s.handleGetBacktestResult)
		api.GET("/backtest/:run_id/trades.arrow", s.handleTradesArrow)
		api.GET("/backtest/:run_id/equity.arrow", s.handleEquityArrow)
		api.POST("/sweep", s.handleSweepRequest)
		api.GET("/health", s.handleHealthCheck)
	}
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req pb.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ExecuteBacktest(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleSweepRequest(c *gin.Context) {
	var req pb.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ExecuteSweep(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	run, ok := s.lookup(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	c.JSON(http.StatusOK, run.response)
}

func (s *BacktestService) handleTradesArrow(c *gin.Context) {
	run, ok := s.lookup(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	data, err := s.exporter.Trades(run.report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func (s *BacktestService) handleEquityArrow(c *gin.Context) {
	run, ok := s.lookup(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	data, err := s.exporter.Equity(run.report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := s.clickhouse.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// statusFor maps engine error kinds to HTTP statuses: bad inputs are the
// caller's fault, invariant violations are ours.
func statusFor(err error) int {
	switch err.(type) {
	case *engine.ConfigError, *engine.InsufficientDataError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting grid backtest service",
		zap.String("environment", cfg.Environment),
	)

	service, err := NewBacktestService(cfg, logger)
	if err != nil {
		logger.Fatal("create service", zap.Error(err))
	}

	grpcServer := grpc.NewServer()
	pb.RegisterBacktestServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())
	service.setupHTTPRoutes(httpRouter)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("listen on gRPC port", zap.Error(err))
		}
		logger.Info("gRPC server listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpRouter.Run(fmt.Sprintf(":%d", cfg.Server.HTTPPort)); err != nil {
			logger.Fatal("serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
