package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dualtree-engine/internal/engine"
	"github.com/dualtree-engine/internal/service"
	"github.com/dualtree-engine/pkg/dataset"
	"github.com/dualtree-engine/pkg/kdtree"
	"github.com/dualtree-engine/pkg/model"
	"github.com/dualtree-engine/pkg/writer"
)

var (
	// Run command flags
	inputFile      string
	outputDir      string
	algorithmName  string
	neighbors      int
	bandwidth      float64
	leafSize       int
	maxSubtreeSize int
	workers        int
	runID          string
	pretty         bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a dual-tree algorithm on a local dataset",
	Long: `Run a dual-tree algorithm on a local dataset and write the results.

The run command loads points from a CSV or JSON file, builds kd-trees,
and executes the requested algorithm:
  - allknn : all-k-nearest-neighbor search (default)
  - kde    : Gaussian kernel density estimation

Results are written as gzipped JSON, with a plain-JSON summary
alongside it.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	binName := BinName()
	runCmd.Example = `  # Find the 3 nearest neighbors of every point
  ` + binName + ` run -i ./points.csv -o ./output -a allknn -k 3

  # Kernel density estimation with bandwidth 0.5
  ` + binName + ` run -i ./points.csv -a kde -b 0.5

  # Control parallelism and tree granularity
  ` + binName + ` run -i ./points.csv -a allknn -w 8 --leaf-size 10 --max-subtree-size 256`

	// Input/Output flags
	runCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input dataset file, CSV or JSON (required)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "./output", "Output directory for generated files")
	runCmd.MarkFlagRequired("input")

	// Algorithm flags
	runCmd.Flags().StringVarP(&algorithmName, "algorithm", "a", "allknn", "Algorithm: allknn, kde")
	runCmd.Flags().IntVarP(&neighbors, "neighbors", "k", 1, "Number of neighbors to find (allknn)")
	runCmd.Flags().Float64VarP(&bandwidth, "bandwidth", "b", 1.0, "Gaussian kernel bandwidth (kde)")

	// Engine flags
	runCmd.Flags().IntVar(&leafSize, "leaf-size", kdtree.DefaultLeafSize, "Maximum points per tree leaf")
	runCmd.Flags().IntVar(&maxSubtreeSize, "max-subtree-size", 512, "Maximum points per query subtree slot")
	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker count (0 = all CPUs)")
	runCmd.Flags().StringVar(&runID, "rid", "", "Run identifier (auto-generated if empty)")
	runCmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print the summary file")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputFile)
	}

	algorithm, ok := model.ParseAlgorithm(algorithmName)
	if !ok {
		return fmt.Errorf("unknown algorithm: %s (valid: allknn, kde)", algorithmName)
	}

	rid := runID
	if rid == "" {
		rid = generateRunID()
	}

	runOutputDir := filepath.Join(outputDir, rid)
	if err := os.MkdirAll(runOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	log.Info("=== Dual-Tree Run ===")
	log.Info("Input file:  %s", inputFile)
	log.Info("Output dir:  %s", runOutputDir)
	log.Info("Algorithm:   %s", algorithm)
	log.Info("Run ID:      %s", rid)
	log.Info("")

	points, err := dataset.Load(inputFile)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Info("Loaded %d points with %d dimensions", len(points), len(points[0]))

	eng := engine.New(engine.Params{
		LeafSize:       leafSize,
		MaxSubtreeSize: maxSubtreeSize,
		Workers:        workers,
	}, log)

	var knn *engine.AllKNN
	var kde *engine.KDE
	factory := func(qt, rt *kdtree.Tree) engine.Visitor {
		switch algorithm {
		case model.AlgorithmKDE:
			kde = engine.NewKDE(qt, rt, bandwidth, 0)
			return kde
		default:
			knn = engine.NewAllKNN(qt, rt, neighbors, true)
			return knn
		}
	}

	log.Info("Starting computation...")
	_, stats, err := eng.Run(context.Background(), points, points, factory)
	if err != nil {
		return fmt.Errorf("computation failed: %w", err)
	}

	log.Info("Computation completed successfully!")
	log.Info("")

	summary := &model.Summary{
		RunUUID:     rid,
		Algorithm:   algorithm.String(),
		Points:      stats.Points,
		Dimensions:  stats.Dimensions,
		Slots:       stats.Slots,
		Splits:      stats.Splits,
		Tasks:       int(stats.Tasks),
		BasePairs:   stats.BasePairs,
		Elapsed:     stats.Elapsed,
		ElapsedText: stats.Elapsed.Round(time.Millisecond).String(),
	}

	result := &service.RunResult{
		RunUUID:   rid,
		Algorithm: algorithm.String(),
		Summary:   summary,
	}
	if knn != nil {
		result.Neighbors = knn.Neighbors()
	}
	if kde != nil {
		result.Densities = kde.Densities()
	}

	resultFile := filepath.Join(runOutputDir, "result.json.gz")
	gz := writer.NewGzipWriter[*service.RunResult]()
	writeStats, err := gz.WriteToFileWithStats(result, resultFile)
	if err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}

	summaryFile := filepath.Join(runOutputDir, "summary.json")
	if err := summaryWriter().WriteToFile(summary, summaryFile); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	printSummary(log, summary)
	log.Info("")
	log.Info("=== Run Complete ===")
	log.Info("Result file:  %s (%d bytes, %.1f%% of raw JSON)", resultFile, writeStats.CompressedSize, writeStats.CompressionPct)
	log.Info("Summary file: %s", summaryFile)

	return nil
}

func summaryWriter() *writer.JSONWriter[*model.Summary] {
	if pretty {
		return writer.NewPrettyJSONWriter[*model.Summary]()
	}
	return writer.NewJSONWriter[*model.Summary]()
}

func generateRunID() string {
	return fmt.Sprintf("local-%d", os.Getpid())
}

func printSummary(log interface {
	Info(format string, args ...interface{})
}, summary *model.Summary) {
	log.Info("=== Run Summary ===")
	log.Info("  Points:     %d", summary.Points)
	log.Info("  Dimensions: %d", summary.Dimensions)
	log.Info("  Slots:      %d", summary.Slots)
	log.Info("  Splits:     %d", summary.Splits)
	log.Info("  Tasks:      %d", summary.Tasks)
	log.Info("  Base pairs: %d", summary.BasePairs)
	log.Info("  Elapsed:    %s", summary.ElapsedText)
}
