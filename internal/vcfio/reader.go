// Package vcfio streams a VCF (optionally bgzip/gzip-compressed) into
// batches of normalized, annotated, imputation-tagged variant records,
// composing C1-C3 over each data line (C4).
package vcfio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gzip "github.com/klauspost/pgzip"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
	"github.com/vcf-pg-loader/vcf-pg-loader/internal/imputation"
)

const defaultBufferSize = 1 << 20 // 1 MiB, matches the pack's compressed-reader buffer convention

// Batch is one fixed-size slice of decomposed variant records pulled from
// the underlying VCF, plus the genotype columns for each input line (in
// ParseRecords input-line order, not per-decomposed-allele order).
type Batch struct {
	Variants  []domain.Variant
	Genotypes [][]string // raw per-sample FORMAT-column strings, one slice per data line
	// LineVariantCount[i] is how many consecutive entries of Variants came
	// from the i-th data line (>1 for multi-allelic sites), so callers can
	// re-associate Genotypes[i] with the right slice of Variants.
	LineVariantCount []int
	FormatColumn     []string // FORMAT field (e.g. "GT:GQ:DP:AD"), one per data line
}

// Reader is a single-pass, forward-only VCF stream. It is not
// restartable: Next must be called to exhaustion or Close invoked early.
type Reader struct {
	scanner   *bufio.Scanner
	closers   []io.Closer
	header    Header
	impSource imputation.Source
	batchSize int
	lineNo    int
	done      bool
}

// Open opens a VCF file, transparently decompressing when the path ends
// in ".gz", parses its header, and returns a Reader ready to stream
// batches. batchSize <= 0 falls back to the spec's documented default.
func Open(path string, batchSize int) (*Reader, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vcf file: %w", err)
	}

	closers := []io.Closer{fh}
	var src io.Reader = fh

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, fmt.Errorf("decompressing vcf file: %w", err)
		}
		closers = append(closers, gz)
		src = gz
	}

	buf := make([]byte, 0, defaultBufferSize)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(buf, defaultBufferSize)

	r := &Reader{scanner: scanner, closers: closers, batchSize: batchSize}

	if err := r.parseHeader(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) parseHeader() error {
	var metaLines []string

	for r.scanner.Scan() {
		r.lineNo++
		line := r.scanner.Text()
		if strings.HasPrefix(line, "##") {
			metaLines = append(metaLines, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			r.header = ParseHeaderLines(metaLines, line)
			r.impSource = imputation.DetectSource(r.header.Raw)
			return nil
		}
		return &domain.ParseError{Line: r.lineNo, Message: "data encountered before #CHROM header line"}
	}
	if err := r.scanner.Err(); err != nil {
		return fmt.Errorf("reading vcf header: %w", err)
	}
	return &domain.ParseError{Line: r.lineNo, Message: "missing #CHROM header line"}
}

// Header returns the parsed VCF header.
func (r *Reader) Header() Header { return r.header }

// Next pulls the next batch of decomposed records. It returns io.EOF via a
// nil Batch and nil error combination replaced by (Batch{}, io.EOF) once
// the stream is exhausted. ctx is checked between lines so a cancelled
// load can stop without waiting for a full batch to fill.
func (r *Reader) Next(ctx context.Context) (Batch, error) {
	if r.done {
		return Batch{}, io.EOF
	}

	var batch Batch

	for len(batch.Variants) < r.batchSize {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
		}

		if !r.scanner.Scan() {
			r.done = true
			if err := r.scanner.Err(); err != nil {
				return batch, fmt.Errorf("reading vcf body: %w", err)
			}
			if len(batch.Variants) == 0 {
				return batch, io.EOF
			}
			return batch, nil
		}

		r.lineNo++
		line := r.scanner.Text()
		if line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if err := Validate(r.lineNo, cols); err != nil {
			return batch, err
		}

		variants := ParseRecords(r.header, r.impSource, cols)

		var gts []string
		var format string
		if r.header.HasFormat && len(cols) > r.header.ColumnIndex["FORMAT"] {
			format = cols[r.header.ColumnIndex["FORMAT"]]
			for _, idx := range r.header.SampleColumnIdx {
				if idx < len(cols) {
					gts = append(gts, cols[idx])
				}
			}
		}

		batch.Variants = append(batch.Variants, variants...)
		batch.Genotypes = append(batch.Genotypes, gts)
		batch.LineVariantCount = append(batch.LineVariantCount, len(variants))
		batch.FormatColumn = append(batch.FormatColumn, format)

		if len(batch.Variants) >= r.batchSize {
			break
		}
	}

	return batch, nil
}

// Close releases the underlying file (and decompressor, if any) handles.
func (r *Reader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
