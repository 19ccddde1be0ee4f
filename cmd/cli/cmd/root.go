package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dualtree-engine/pkg/utils"
)

var (
	// Global flags
	verbose bool
	logger  utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dualtree",
	Short: "A dual-tree computation tool",
	Long: `dualtree is a CLI tool for running dual-tree algorithms on local datasets.

It builds kd-trees over the input points and executes the requested
algorithm with a parallel, work-stealing task queue. Supported
algorithms are all-k-nearest-neighbor search and Gaussian kernel
density estimation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Set dynamic example using actual binary name
	binName := BinName()
	rootCmd.Example = `  # Find the 5 nearest neighbors of every point
  ` + binName + ` run -i ./points.csv -a allknn -k 5

  # Estimate density with a Gaussian kernel
  ` + binName + ` run -i ./points.csv -a kde -b 0.5

  # Use 8 workers and a custom leaf size
  ` + binName + ` run -i ./points.csv -a allknn -k 3 -w 8 --leaf-size 10`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
