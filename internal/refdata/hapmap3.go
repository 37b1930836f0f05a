package refdata

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/hapmap"
)

// OpenMaybeGzip wraps r in a gzip reader when name ends in ".gz", matching
// the reference panel distributions' usual packaging.
func OpenMaybeGzip(r io.Reader, name string) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, ".gz") {
		return io.NopCloser(r), nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("refdata: opening gzip stream: %w", err)
	}
	return gz, nil
}

// ParseHapMap3TSV reads a header-led, tab-separated HapMap3 panel file
// ("rsid\tchrom\tposition\ta1\ta2", in any column order) into entries
// tagged with panelName, ready for LDBlockRepository's sibling
// HapMap3Repository.ImportBatch.
func ParseHapMap3TSV(r io.Reader, panelName string) ([]domain.HapMap3Entry, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("refdata: reading header: %w", err)
		}
		return nil, fmt.Errorf("refdata: empty hapmap3 file")
	}

	header := strings.Split(scanner.Text(), "\t")
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	required := []string{"chrom", "position", "a1", "a2"}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("refdata: hapmap3 file missing required column %q", name)
		}
	}
	rsidCol, hasRSID := col["rsid"]

	var entries []domain.HapMap3Entry
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < len(header) {
			return nil, fmt.Errorf("refdata: line %d: expected %d columns, got %d", lineNo, len(header), len(cols))
		}

		pos, err := strconv.ParseUint(cols[col["position"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("refdata: line %d: invalid position %q: %w", lineNo, cols[col["position"]], err)
		}

		entry := domain.HapMap3Entry{
			PanelName: panelName,
			Chrom:     hapmap.NormalizeChrom(cols[col["chrom"]]),
			Position:  pos,
			A1:        cols[col["a1"]],
			A2:        cols[col["a2"]],
		}
		if hasRSID {
			entry.RSID = cols[rsidCol]
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("refdata: scanning hapmap3 file: %w", err)
	}

	return entries, nil
}
