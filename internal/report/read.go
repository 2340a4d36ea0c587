package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/stats"
)

// PairRow is one row of a pair table read back for re-aggregation.
type PairRow struct {
	Identity  core.CanonicalId
	LatencyMs float64
	Labels    stats.Labels
}

// ReadPairs reads a pair table. Columns are located by header name;
// latency_ms falls back to end_timestamp - start_timestamp when absent.
// Tables without context columns yield rows labelled only by procedure.
// Identities must be in the "space:value" form the pair table is written in.
func ReadPairs(r io.Reader) ([]PairRow, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("pair table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read pair header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, required := range []string{"identity", "procedure"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("pair table has no %s column", required)
		}
	}
	_, hasLatency := col["latency_ms"]
	_, hasStart := col["start_timestamp"]
	_, hasEnd := col["end_timestamp"]
	if !hasLatency && !(hasStart && hasEnd) {
		return nil, errors.New("pair table has neither latency_ms nor start/end timestamps")
	}

	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []PairRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pair table: %w", err)
		}

		id, ok := core.ParseCanonicalId(get(rec, "identity"))
		if !ok {
			return nil, fmt.Errorf("line %d: malformed identity %q", line, get(rec, "identity"))
		}

		var latency float64
		if hasLatency {
			latency, err = strconv.ParseFloat(get(rec, "latency_ms"), 64)
		} else {
			latency, err = spanMillis(get(rec, "start_timestamp"), get(rec, "end_timestamp"))
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: latency: %w", line, err)
		}

		rows = append(rows, PairRow{
			Identity:  id,
			LatencyMs: latency,
			Labels: stats.Labels{
				config.DimVariant:   get(rec, config.DimVariant),
				config.DimProcedure: get(rec, config.DimProcedure),
				config.DimUECount:   get(rec, config.DimUECount),
				config.DimFunction:  get(rec, config.DimFunction),
			},
		})
	}
	return rows, nil
}

func spanMillis(start, end string) (float64, error) {
	s, err := strconv.ParseFloat(start, 64)
	if err != nil {
		return 0, err
	}
	e, err := strconv.ParseFloat(end, 64)
	if err != nil {
		return 0, err
	}
	return (e - s) * 1000, nil
}

// ReadPairsFile reads the pair table at path.
func ReadPairsFile(path string) ([]PairRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadPairs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}
