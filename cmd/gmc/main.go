// Command gmc clusters multi-view datasets.
//
//	gmc run   -data <dir> -clusters <c> [flags]   cluster one dataset and exit
//	gmc serve [flags]                             start the HTTP job API
//	gmc mcp   [flags]                             serve the MCP tools over stdio
//
// Every subcommand reads the optional -config YAML file; flags given on the
// command line override it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	gmcmcp "github.com/sanonone/gmc/internal/mcp"
	"github.com/sanonone/gmc/internal/server"
	"github.com/sanonone/gmc/pkg/config"
	"github.com/sanonone/gmc/pkg/core/distance"
	"github.com/sanonone/gmc/pkg/dataset"
	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/linalg"
	"github.com/sanonone/gmc/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: gmc <run|serve|mcp> [flags]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	opts := registerFlags(fs)
	fs.Parse(args)

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := opts.apply(fs, &cfg); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	// MCP speaks on stdout, so logs always go to stderr.
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	logger.Debug("CPU", "brand", linalg.CPUBrand(), "participants", cfg.Clustering.Participants)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		if err := runOnce(ctx, cfg, opts, logger); err != nil {
			log.Fatalf("Clustering failed: %v", err)
		}
	case "serve":
		serve(ctx, cfg, logger)
	case "mcp":
		s := gmcmcp.NewMCPServer(cfg.Clustering, cfg.Precision(), logger)
		if err := s.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("MCP server stopped: %v", err)
		}
	default:
		usage()
	}
}

type flags struct {
	configPath string
	dataDir    string
	dump       bool

	clusters      int
	neighbors     int
	lambda        float64
	maxIterations int
	zeroTolerance float64
	normalize     bool
	candidates    string
	participants  int
	kernel        string

	address   string
	authToken string
	outDir    string
	precision string
	journal   bool
	logLevel  string
}

func registerFlags(fs *flag.FlagSet) *flags {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "Path of the YAML configuration file")
	fs.StringVar(&f.dataDir, "data", "", "Dataset directory, one view per file (run)")
	fs.BoolVar(&f.dump, "dump", false, "Also write U, F and the eigenvalue trace as text matrices (run)")

	fs.IntVar(&f.clusters, "clusters", 0, "Target number of clusters")
	fs.IntVar(&f.neighbors, "neighbors", 0, "Neighbors per sample")
	fs.Float64Var(&f.lambda, "lambda", 0, "Initial rank penalty multiplier")
	fs.IntVar(&f.maxIterations, "max-iterations", 0, "Iteration budget")
	fs.Float64Var(&f.zeroTolerance, "zero-tolerance", 0, "Eigenvalue sum treated as zero")
	fs.BoolVar(&f.normalize, "normalize", false, "Z-score every feature before building the graphs")
	fs.StringVar(&f.candidates, "candidates", "", "Consensus row support: local or global")
	fs.IntVar(&f.participants, "participants", 0, "Size of the eigen-decomposition group")
	fs.StringVar(&f.kernel, "kernel", "", "Pairwise distance kernel: gram or direct")

	fs.StringVar(&f.address, "http-addr", "", "Listen address (serve)")
	fs.StringVar(&f.authToken, "auth-token", "", "Bearer token protecting /v1 (serve)")
	fs.StringVar(&f.outDir, "out", "", "Output directory for snapshots")
	fs.StringVar(&f.precision, "precision", "", "Snapshot precision: float64 or float16")
	fs.BoolVar(&f.journal, "journal", false, "Journal every iteration next to the snapshot")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	return f
}

// apply copies the flags set on the command line into cfg.
func (f *flags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	fs.Visit(func(fl *flag.Flag) {
		c := &cfg.Clustering
		switch fl.Name {
		case "clusters":
			c.Clusters = f.clusters
		case "neighbors":
			c.Neighbors = f.neighbors
		case "lambda":
			c.Lambda = f.lambda
		case "max-iterations":
			c.MaxIterations = f.maxIterations
		case "zero-tolerance":
			c.ZeroTolerance = f.zeroTolerance
		case "normalize":
			c.Normalize = f.normalize
		case "candidates":
			c.Candidates = gmc.CandidatePolicy(f.candidates)
		case "participants":
			c.Participants = f.participants
		case "kernel":
			c.Kernel = distance.Kernel(f.kernel)
		case "http-addr":
			cfg.Server.Address = f.address
		case "auth-token":
			cfg.Server.AuthToken = f.authToken
		case "out":
			cfg.Output.Directory = f.outDir
		case "precision":
			cfg.Output.Precision = f.precision
		case "journal":
			cfg.Output.Journal = f.journal
		case "log-level":
			cfg.Logging.Level = f.logLevel
		}
	})
	return cfg.Validate()
}

// closeJournal closes j and logs any write failure the run hook recorded.
func closeJournal(j *persistence.Journal, logger *slog.Logger) {
	if err := j.Close(); err != nil {
		logger.Warn("journal close failed", "path", j.Path(), "error", err)
	}
}

func runOnce(ctx context.Context, cfg config.Config, f *flags, logger *slog.Logger) error {
	if f.dataDir == "" {
		return fmt.Errorf("-data is required")
	}
	ds, err := dataset.ReadDataset(f.dataDir)
	if err != nil {
		return err
	}
	logger.Info("Dataset loaded", "dir", f.dataDir, "views", len(ds.Views), "samples", ds.Samples())

	out := cfg.Output.Directory
	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
	}

	opts := []gmc.Option{gmc.WithLogger(logger)}
	if out != "" && cfg.Output.Journal {
		journal, err := persistence.OpenJournal(filepath.Join(out, "run.journal"))
		if err != nil {
			return err
		}
		defer closeJournal(journal, logger)
		opts = append(opts, gmc.WithIterationHook(journal.Hook()))
	}

	res, runErr := gmc.Run(ctx, ds.Views, cfg.Clustering, opts...)
	if res == nil {
		return runErr
	}

	if out != "" {
		if err := persistence.SaveSnapshot(filepath.Join(out, "result.gmc"), res, cfg.Precision()); err != nil {
			return err
		}
		if f.dump {
			for name, m := range map[string]mat.Matrix{"U.txt": res.U, "F.txt": res.F, "evs.txt": res.Eigenvalues} {
				if err := dataset.WriteMatrixFile(filepath.Join(out, name), m); err != nil {
					return err
				}
			}
		}
	}

	fmt.Printf("clusters=%d iterations=%d converged=%t lambda=%g\n", res.Clusters, res.Iterations, res.Converged, res.Lambda)
	for i, l := range res.Labels {
		fmt.Printf("%d %d\n", i, l)
	}
	return runErr
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	srv.Shutdown()
}
