// Package dataset loads point sets from CSV and JSON files.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/dualtree-engine/pkg/errors"
)

// Load reads a point set from the file, dispatching on the extension.
// Supported formats are .csv and .json.
func Load(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatasetError, "failed to open dataset file", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, apperrors.Newf(apperrors.CodeDatasetError,
			"unsupported dataset format: %s", filepath.Ext(path))
	}
}

// LoadCSV reads points from CSV content, one point per row. A
// non-numeric first row is treated as a header and skipped.
func LoadCSV(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatasetError, "failed to parse csv", err)
	}
	if len(records) == 0 {
		return nil, apperrors.New(apperrors.CodeDatasetError, "dataset is empty")
	}

	start := 0
	if _, err := strconv.ParseFloat(records[0][0], 64); err != nil {
		start = 1
	}

	points := make([][]float64, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		point := make([]float64, len(records[i]))
		for j, field := range records[i] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, apperrors.Newf(apperrors.CodeDatasetError,
					"invalid value %q at row %d column %d", field, i+1, j+1)
			}
			point[j] = v
		}
		points = append(points, point)
	}

	return validate(points)
}

// LoadJSON reads points from JSON content, an array of coordinate arrays.
func LoadJSON(r io.Reader) ([][]float64, error) {
	var points [][]float64
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatasetError, "failed to parse json", err)
	}
	return validate(points)
}

// validate rejects empty point sets and inconsistent dimensions.
func validate(points [][]float64) ([][]float64, error) {
	if len(points) == 0 {
		return nil, apperrors.New(apperrors.CodeDatasetError, "dataset is empty")
	}
	dim := len(points[0])
	if dim == 0 {
		return nil, apperrors.New(apperrors.CodeDatasetError, "points have zero dimensions")
	}
	for i, p := range points {
		if len(p) != dim {
			return nil, apperrors.Newf(apperrors.CodeDatasetError,
				"point %d has %d dimensions, expected %d", i, len(p), dim)
		}
	}
	return points, nil
}
