package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/chart-consensus/internal/domain"
)

// maxLineBytes bounds one JSONL line; a full 24-hour series is a few KB.
const maxLineBytes = 1 << 20

// LoadRereads reads JSONL chart readings, one
// {"source_file","page","kind","series"} object per line. Blank lines are
// skipped.
func LoadRereads(r io.Reader) ([]domain.ChartReading, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []domain.ChartReading
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c domain.ChartReading
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		kind, err := domain.ParseKind(string(c.Kind))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.Kind = kind
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rereads: %w", err)
	}
	return out, nil
}

// LoadRereadFile loads a JSONL file of re-read series as a Rereader.
func LoadRereadFile(path string) (*domain.StaticRereader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reread file: %w", err)
	}
	defer f.Close()

	readings, err := LoadRereads(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return domain.NewStaticRereader(readings), nil
}
