package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/gmc/pkg/dataset"
	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
)

type Service struct {
	defaults  gmc.Config
	precision persistence.Precision
	logger    *slog.Logger
}

func NewService(defaults gmc.Config, precision persistence.Precision, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		defaults:  defaults,
		precision: precision,
		logger:    logger,
	}
}

// config overlays the non-zero arguments on the defaults.
func (s *Service) config(args ClusterDatasetArgs) gmc.Config {
	cfg := s.defaults
	cfg.Clusters = args.Clusters
	if args.Neighbors > 0 {
		cfg.Neighbors = args.Neighbors
	}
	if args.Lambda > 0 {
		cfg.Lambda = args.Lambda
	}
	if args.MaxIterations > 0 {
		cfg.MaxIterations = args.MaxIterations
	}
	if args.Candidates != "" {
		cfg.Candidates = gmc.CandidatePolicy(args.Candidates)
	}
	if args.Normalize {
		cfg.Normalize = true
	}
	return cfg
}

// --- Tool Handlers ---

func (s *Service) ClusterDataset(ctx context.Context, req *mcp.CallToolRequest, args ClusterDatasetArgs) (*mcp.CallToolResult, ClusterSummary, error) {
	ds, err := dataset.ReadDataset(args.Directory)
	if err != nil {
		return nil, ClusterSummary{}, err
	}

	res, err := gmc.Run(ctx, ds.Views, s.config(args), gmc.WithLogger(s.logger))
	if err != nil {
		return nil, ClusterSummary{}, fmt.Errorf("clustering failed: %w", err)
	}

	summary := summarize(res)
	if args.Snapshot != "" {
		if err := persistence.SaveSnapshot(args.Snapshot, res, s.precision); err != nil {
			return nil, ClusterSummary{}, err
		}
		summary.Snapshot = args.Snapshot
	}
	return nil, summary, nil
}

func (s *Service) DescribeSnapshot(ctx context.Context, req *mcp.CallToolRequest, args DescribeSnapshotArgs) (*mcp.CallToolResult, ClusterSummary, error) {
	res, _, err := persistence.LoadSnapshot(args.Path)
	if err != nil {
		return nil, ClusterSummary{}, err
	}
	summary := summarize(res)
	summary.Snapshot = args.Path
	return nil, summary, nil
}

func summarize(res *gmc.Result) ClusterSummary {
	members := res.Members()
	sizes := make([]int, len(members))
	for i, m := range members {
		sizes[i] = len(m)
	}
	return ClusterSummary{
		RunID:        res.RunID,
		Samples:      res.Samples,
		Views:        res.Views,
		Clusters:     res.Clusters,
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		Lambda:       res.Lambda,
		ClusterSizes: sizes,
		Labels:       res.Labels,
		Weights:      res.Weights,
	}
}
