package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Result file layout written by the external inference command.
const (
	resultHeader  = "-- Inference Result --"
	dataHeader    = "-- Inference Data --"
	rowCountKey   = "Row count:"
	embedWidthKey = "Embedding size:"
)

// WriteResult writes rows in the result file layout: every value on its own
// line in row-major order, then the row count and embedding width.
func WriteResult(w io.Writer, rows [][]float32) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, resultHeader)
	width := 0
	for _, row := range rows {
		width = len(row)
		for _, v := range row {
			fmt.Fprintln(bw, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, dataHeader)
	fmt.Fprintf(bw, "%s %d\n", rowCountKey, len(rows))
	fmt.Fprintf(bw, "%s %d\n", embedWidthKey, width)
	return bw.Flush()
}

// ParseResult reads a result file back into rows.
func ParseResult(r io.Reader) ([][]float32, error) {
	sc := bufio.NewScanner(r)
	var (
		values            []float32
		inValues, sawData bool
		rows, width       = -1, -1
	)

	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == resultHeader:
			inValues = true
		case text == dataHeader:
			inValues, sawData = false, true
		case text == "":
		case strings.HasPrefix(text, rowCountKey):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, rowCountKey)))
			if err != nil {
				return nil, fmt.Errorf("result line %d: bad row count: %w", line, err)
			}
			rows = n
		case strings.HasPrefix(text, embedWidthKey):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, embedWidthKey)))
			if err != nil {
				return nil, fmt.Errorf("result line %d: bad embedding size: %w", line, err)
			}
			width = n
		case inValues:
			v, err := strconv.ParseFloat(text, 32)
			if err != nil {
				return nil, fmt.Errorf("result line %d: %w", line, err)
			}
			values = append(values, float32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}

	if !sawData || rows < 0 || width < 0 {
		return nil, fmt.Errorf("result is missing the %q section", dataHeader)
	}
	if rows == 0 || width == 0 {
		return nil, fmt.Errorf("result declares an empty embedding: %d rows x %d", rows, width)
	}
	// rows*width may overflow; compare by division.
	if rows > len(values) || len(values)%rows != 0 || len(values)/rows != width {
		return nil, fmt.Errorf("result has %d values, want %d rows x %d", len(values), rows, width)
	}

	out := make([][]float32, rows)
	for i := range out {
		out[i] = values[i*width : (i+1)*width : (i+1)*width]
	}
	return out, nil
}
