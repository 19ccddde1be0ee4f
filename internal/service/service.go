// Package service polls the database for pending runs and executes
// them: dataset download, tree construction, dual-tree computation,
// result upload, and summary bookkeeping.
package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dualtree-engine/internal/engine"
	"github.com/dualtree-engine/internal/repository"
	"github.com/dualtree-engine/internal/storage"
	"github.com/dualtree-engine/pkg/config"
	"github.com/dualtree-engine/pkg/dataset"
	apperrors "github.com/dualtree-engine/pkg/errors"
	"github.com/dualtree-engine/pkg/kdtree"
	"github.com/dualtree-engine/pkg/model"
	"github.com/dualtree-engine/pkg/utils"
	"github.com/dualtree-engine/pkg/writer"
)

const tracerName = "dualtree-engine/service"

// RunResult is the artifact uploaded for a completed run.
type RunResult struct {
	RunUUID   string              `json:"rid"`
	Algorithm string              `json:"algorithm"`
	Neighbors [][]engine.Neighbor `json:"neighbors,omitempty"`
	Densities []float64           `json:"densities,omitempty"`
	Summary   *model.Summary      `json:"summary"`
}

// Service executes pending runs.
type Service struct {
	cfg         *config.Config
	runRepo     repository.RunRepository
	summaryRepo repository.SummaryRepository
	store       storage.Storage
	logger      utils.Logger
	clock       utils.Clock
}

// New creates a Service.
func New(cfg *config.Config, runRepo repository.RunRepository, summaryRepo repository.SummaryRepository, store storage.Storage, logger utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Service{
		cfg:         cfg,
		runRepo:     runRepo,
		summaryRepo: summaryRepo,
		store:       store,
		logger:      logger,
		clock:       utils.NewRealClock(),
	}
}

// Start polls for pending runs until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	interval := time.Duration(s.cfg.Worker.PollInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}

	s.logger.Info("run service started, polling every %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("run service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil {
				s.logger.Error("poll failed: %v", err)
			}
		}
	}
}

// PollOnce fetches one batch of pending runs and processes each run
// that it manages to claim.
func (s *Service) PollOnce(ctx context.Context) error {
	batch := s.cfg.Worker.RunBatchSize
	if batch <= 0 {
		batch = 10
	}

	runs, err := s.runRepo.GetPendingRuns(ctx, batch)
	if err != nil {
		return err
	}

	for _, run := range runs {
		claimed, err := s.runRepo.LockRunForProcessing(ctx, run.ID)
		if err != nil {
			s.logger.Error("failed to claim run %s: %v", run.RunUUID, err)
			continue
		}
		if !claimed {
			continue
		}

		if err := s.ProcessRun(ctx, run); err != nil {
			s.logger.Error("run %s failed: %v", run.RunUUID, err)
			if updateErr := s.runRepo.UpdateStatusWithInfo(ctx, run.ID, model.RunStatusFailed, err.Error()); updateErr != nil {
				s.logger.Error("failed to mark run %s failed: %v", run.RunUUID, updateErr)
			}
		}
	}

	return nil
}

// ProcessRun executes one claimed run end to end.
func (s *Service) ProcessRun(ctx context.Context, run *model.Run) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProcessRun")
	span.SetAttributes(
		attribute.String("run.rid", run.RunUUID),
		attribute.String("run.algorithm", run.Algorithm.String()),
	)
	defer span.End()

	timer := utils.NewTimer("run "+run.RunUUID, utils.WithClock(s.clock))
	logger := s.logger.WithField("rid", run.RunUUID)
	logger.Info("processing %s run", run.Algorithm)

	runDir := s.cfg.GetRunDir(run.RunUUID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "failed to create run directory", err)
	}
	defer os.RemoveAll(runDir)

	downloadPhase := timer.Start("download")
	datasetPath := filepath.Join(runDir, filepath.Base(run.DatasetKey))
	if err := s.store.DownloadFile(ctx, run.DatasetKey, datasetPath); err != nil {
		return err
	}
	points, err := dataset.Load(datasetPath)
	if err != nil {
		return err
	}
	downloadPhase.Stop()

	eng := engine.New(s.engineParams(run), logger)

	var knn *engine.AllKNN
	var kde *engine.KDE
	factory := func(qt, rt *kdtree.Tree) engine.Visitor {
		switch run.Algorithm {
		case model.AlgorithmKDE:
			kde = engine.NewKDE(qt, rt, s.bandwidth(run), 0)
			return kde
		default:
			knn = engine.NewAllKNN(qt, rt, s.neighbors(run), true)
			return knn
		}
	}

	_, stats, err := eng.Run(ctx, points, points, factory)
	if err != nil {
		return err
	}

	summary := &model.Summary{
		RunUUID:     run.RunUUID,
		Algorithm:   run.Algorithm.String(),
		Points:      stats.Points,
		Dimensions:  stats.Dimensions,
		Slots:       stats.Slots,
		Splits:      stats.Splits,
		Tasks:       int(stats.Tasks),
		BasePairs:   stats.BasePairs,
		Elapsed:     stats.Elapsed,
		ElapsedText: stats.Elapsed.Round(time.Millisecond).String(),
	}

	result := &RunResult{
		RunUUID:   run.RunUUID,
		Algorithm: run.Algorithm.String(),
		Summary:   summary,
	}
	if knn != nil {
		result.Neighbors = knn.Neighbors()
	}
	if kde != nil {
		result.Densities = kde.Densities()
	}

	uploadPhase := timer.Start("upload")
	artifactPath := filepath.Join(runDir, "result.json.gz")
	gz := writer.NewGzipWriter[*RunResult]()
	writeStats, err := gz.WriteToFileWithStats(result, artifactPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "failed to write result artifact", err)
	}

	artifact, err := os.Open(artifactPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "failed to open result artifact", err)
	}
	defer artifact.Close()

	resultKey := storage.ResultKey(run.RunUUID)
	if err := s.store.Upload(ctx, resultKey, artifact); err != nil {
		return err
	}
	uploadPhase.Stop()

	if err := s.runRepo.SetResultKey(ctx, run.ID, resultKey); err != nil {
		return err
	}
	if err := s.summaryRepo.SaveSummary(ctx, summary); err != nil {
		return err
	}
	if err := s.runRepo.UpdateStatusWithInfo(ctx, run.ID, model.RunStatusCompleted, ""); err != nil {
		return err
	}

	logger.Info("run completed: %s, artifact %d bytes (%.1f%% of raw), %s",
		stats.Phases, writeStats.CompressedSize, writeStats.CompressionPct, timer.Summary())
	return nil
}

func (s *Service) engineParams(run *model.Run) engine.Params {
	params := engine.Params{
		LeafSize:       s.cfg.Engine.LeafSize,
		MaxSubtreeSize: s.cfg.Engine.MaxSubtreeSize,
		Workers:        s.cfg.Worker.WorkerCount,
	}
	if run.Params.LeafSize > 0 {
		params.LeafSize = run.Params.LeafSize
	}
	if run.Params.MaxSubtreeSize > 0 {
		params.MaxSubtreeSize = run.Params.MaxSubtreeSize
	}
	if run.Params.Workers > 0 {
		params.Workers = run.Params.Workers
	}
	return params
}

func (s *Service) neighbors(run *model.Run) int {
	if run.Params.Neighbors > 0 {
		return run.Params.Neighbors
	}
	if s.cfg.Engine.Neighbors > 0 {
		return s.cfg.Engine.Neighbors
	}
	return 1
}

func (s *Service) bandwidth(run *model.Run) float64 {
	if run.Params.Bandwidth > 0 {
		return run.Params.Bandwidth
	}
	if s.cfg.Engine.Bandwidth > 0 {
		return s.cfg.Engine.Bandwidth
	}
	return 1.0
}
