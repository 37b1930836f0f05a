// Package refdata loads flat reference lookup tables — LD-block BED files
// and HapMap3 panel TSVs — that feed the repository layer, without any
// LD-assignment logic of its own.
package refdata

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/hapmap"
)

// LDBlock is one row of an LD-block BED file: a half-open [Start, End)
// region on a chromosome, with an optional block identifier and
// 1000-Genomes SNP count.
type LDBlock struct {
	Chrom    string
	Start    int64
	End      int64
	BlockID  string
	NSNP1KG  *int
}

// ParseBED reads tab-separated LD-block rows: chrom, start, end, and two
// optional trailing columns (block_id, n_snps_1kg). A leading "chr" prefix
// on chrom is stripped to match the normalization HapMap3 lookups use.
func ParseBED(r io.Reader) ([]LDBlock, error) {
	scanner := bufio.NewScanner(r)
	var blocks []LDBlock
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 3 {
			return nil, fmt.Errorf("refdata: line %d: expected at least 3 columns, got %d", lineNo, len(cols))
		}

		start, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("refdata: line %d: invalid start %q: %w", lineNo, cols[1], err)
		}
		end, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("refdata: line %d: invalid end %q: %w", lineNo, cols[2], err)
		}
		if end <= start {
			return nil, fmt.Errorf("refdata: line %d: end %d must be greater than start %d", lineNo, end, start)
		}

		block := LDBlock{
			Chrom: hapmap.NormalizeChrom(cols[0]),
			Start: start,
			End:   end,
		}
		if len(cols) > 3 {
			block.BlockID = cols[3]
		}
		if len(cols) > 4 {
			n, err := strconv.Atoi(cols[4])
			if err != nil {
				return nil, fmt.Errorf("refdata: line %d: invalid n_snps_1kg %q: %w", lineNo, cols[4], err)
			}
			block.NSNP1KG = &n
		}

		blocks = append(blocks, block)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("refdata: scanning BED: %w", err)
	}
	return blocks, nil
}

// Contains reports whether pos falls within the block's half-open range.
func (b LDBlock) Contains(pos int64) bool {
	return pos >= b.Start && pos < b.End
}
