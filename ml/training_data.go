package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	ReviewColumn    = "review"
	SentimentColumn = "sentiment"
	DefaultPositive = "positive"
)

// naValues are the cell values treated as missing, in addition to the empty string.
var naValues = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

type Dataset struct {
	Texts  []string
	Labels []int
}

func (d Dataset) Len() int { return len(d.Texts) }

type LoadStats struct {
	RowsRead    int
	RowsDropped int
}

func LoadReviews(path, positive string) (Dataset, LoadStats, error) {
	file, err := os.Open(path)
	if err != nil {
		return Dataset{}, LoadStats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	return ReadReviews(file, positive)
}

// ReadReviews parses a headed CSV, drops rows with a missing review or
// sentiment and maps the sentiment to 1 when it equals positive, else 0.
func ReadReviews(r io.Reader, positive string) (Dataset, LoadStats, error) {
	if positive == "" {
		positive = DefaultPositive
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, LoadStats{}, errors.New("dataset is empty")
		}
		return Dataset{}, LoadStats{}, fmt.Errorf("read header: %w", err)
	}
	reviewIdx, sentimentIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ReviewColumn:
			reviewIdx = i
		case SentimentColumn:
			sentimentIdx = i
		}
	}
	if reviewIdx < 0 || sentimentIdx < 0 {
		return Dataset{}, LoadStats{}, fmt.Errorf("dataset header must contain %q and %q columns", ReviewColumn, SentimentColumn)
	}

	var (
		ds    Dataset
		stats LoadStats
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, LoadStats{}, fmt.Errorf("read row %d: %w", stats.RowsRead+1, err)
		}
		stats.RowsRead++

		// A missing value in any header column drops the whole row.
		if !complete(record, len(header)) {
			stats.RowsDropped++
			continue
		}
		ds.Texts = append(ds.Texts, record[reviewIdx])
		ds.Labels = append(ds.Labels, EncodeSentiment(record[sentimentIdx], positive))
	}
	return ds, stats, nil
}

func EncodeSentiment(value, positive string) int {
	if value == positive {
		return 1
	}
	return 0
}

func complete(record []string, columns int) bool {
	if len(record) < columns {
		return false
	}
	for _, value := range record[:columns] {
		if isMissing(value) {
			return false
		}
	}
	return true
}

func isMissing(value string) bool {
	if value == "" {
		return true
	}
	_, ok := naValues[value]
	return ok
}
