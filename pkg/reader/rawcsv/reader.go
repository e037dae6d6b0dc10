// Package rawcsv reads raw CIU fingerprint matrices exported as _raw.csv files.
//
// The first line holds a corner cell followed by the collision-voltage values. Every
// following line holds one drift-time value followed by one intensity per CV column.
package rawcsv

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
)

// Reader parses a single raw matrix from a stream.
type Reader struct {
	scanner *bufio.Scanner
	name    string
	lineNum int
}

// NewReader creates a reader; name is used for provenance and error messages.
func NewReader(r io.Reader, name string) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{
		scanner: scanner,
		name:    name,
	}
}

// Load opens and parses a raw matrix file.
func Load(path string) (*core.RawMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw file: %w", err)
	}
	defer f.Close()

	return NewReader(f, path).Read()
}

// Read parses the whole stream into a validated RawMatrix.
func (r *Reader) Read() (*core.RawMatrix, error) {
	var cv []float64
	var dt []float64
	var values []float64

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		fields := splitFields(line)

		// Header line: corner cell then CV values
		if cv == nil {
			if len(fields) < 2 {
				return nil, r.errorf("header has no collision voltage values")
			}
			cv = make([]float64, 0, len(fields)-1)
			for _, field := range fields[1:] {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, r.errorf("invalid collision voltage %q", field)
				}
				cv = append(cv, v)
			}
			continue
		}

		if len(fields) != len(cv)+1 {
			return nil, r.errorf("expected %d fields, got %d", len(cv)+1, len(fields))
		}
		d, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, r.errorf("invalid drift time %q", fields[0])
		}
		dt = append(dt, d)
		for _, field := range fields[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, r.errorf("invalid intensity %q", field)
			}
			values = append(values, v)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", r.name, err)
	}
	if cv == nil {
		return nil, &core.InputFormatError{File: r.name, Message: "file is empty"}
	}
	if len(dt) == 0 {
		return nil, &core.InputFormatError{File: r.name, Message: "no drift time rows"}
	}

	data := mat.NewDense(len(dt), len(cv), values)
	return core.NewRawMatrix(r.name, data, core.Axes{DT: dt, CV: cv})
}

func (r *Reader) errorf(format string, args ...any) error {
	return &core.InputFormatError{
		File:    r.name,
		Line:    r.lineNum,
		Message: fmt.Sprintf(format, args...),
	}
}

// splitFields splits a comma separated line, dropping one trailing empty field left by a
// trailing comma.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
