// Package ingest downloads each source's bulk dataset, parses it with the
// source's column mapping, and publishes the result as an index snapshot.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/fetcher"
	"github.com/sells-group/verify-cli/internal/index"
	"github.com/sells-group/verify-cli/internal/model"
)

// Builder produces a complete index for a source.
type Builder interface {
	// Build downloads and parses src, returning a complete index.
	Build(ctx context.Context, src catalog.SourceConfig) (*index.SourceIndex, error)
	// BuildIfChanged is Build with a conditional download. When the upstream
	// reports etag unchanged, it returns (nil, false, nil).
	BuildIfChanged(ctx context.Context, src catalog.SourceConfig, etag string) (*index.SourceIndex, bool, error)
}

// Ingestor is the Builder used in production.
type Ingestor struct {
	fetcher fetcher.Fetcher
	tempDir string
	clock   clockwork.Clock
}

var _ Builder = (*Ingestor)(nil)

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithTempDir sets where artifacts are staged. Defaults to os.TempDir().
func WithTempDir(dir string) IngestorOption {
	return func(i *Ingestor) { i.tempDir = dir }
}

// WithClock overrides the clock used to stamp LoadedAt.
func WithClock(c clockwork.Clock) IngestorOption {
	return func(i *Ingestor) { i.clock = c }
}

// NewIngestor creates an Ingestor downloading through f.
func NewIngestor(f fetcher.Fetcher, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{fetcher: f, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Build implements Builder.
func (i *Ingestor) Build(ctx context.Context, src catalog.SourceConfig) (*index.SourceIndex, error) {
	idx, _, err := i.BuildIfChanged(ctx, src, "")
	return idx, err
}

// BuildIfChanged implements Builder.
func (i *Ingestor) BuildIfChanged(ctx context.Context, src catalog.SourceConfig, etag string) (*index.SourceIndex, bool, error) {
	if src.Live() {
		return nil, false, newError(KindConfig, src.ID, eris.New("live sources are not ingested"))
	}

	log := zap.L().With(zap.String("component", "ingest"), zap.String("source", src.ID))
	start := i.clock.Now()

	dir, err := os.MkdirTemp(i.tempDir, "verify-"+src.ID+"-")
	if err != nil {
		return nil, false, newError(KindConfig, src.ID, eris.Wrap(err, "ingest: create temp dir"))
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	var (
		records []model.ExclusionRecord
		newETag string
	)
	switch src.Fetch {
	case catalog.FetchPaginated:
		records, err = fetchFBI(ctx, i.fetcher, src)
	case catalog.FetchExport:
		records, err = i.buildExport(ctx, src, dir)
	case catalog.FetchFile:
		var changed bool
		records, newETag, changed, err = i.buildFile(ctx, src, dir, etag)
		if err == nil && !changed {
			log.Info("ingest: source unchanged", zap.String("etag", etag))
			return nil, false, nil
		}
	default:
		err = newError(KindConfig, src.ID, eris.Errorf("unknown fetch mode %q", src.Fetch))
	}
	if err != nil {
		return nil, false, err
	}

	if len(records) == 0 {
		return nil, false, newError(KindEmptyPayload, src.ID, eris.New("no records parsed"))
	}

	idx := index.New(src.ID, src.Name, records, i.clock.Now(), newETag)
	log.Info("ingest: index built",
		zap.Int("records", idx.Len()),
		zap.Duration("elapsed", i.clock.Since(start)),
	)
	return idx, true, nil
}

func (i *Ingestor) buildFile(ctx context.Context, src catalog.SourceConfig, dir, etag string) ([]model.ExclusionRecord, string, bool, error) {
	body, newETag, changed, err := i.fetcher.DownloadIfChanged(ctx, src.ResolvedURL(), etag)
	if err != nil {
		return nil, "", false, fetchError(src.ID, err)
	}
	if !changed {
		return nil, etag, false, nil
	}
	defer body.Close() //nolint:errcheck

	path := filepath.Join(dir, "artifact")
	if _, err := writeArtifact(path, body); err != nil {
		return nil, "", false, newError(KindNetwork, src.ID, err)
	}
	records, err := i.parseArtifact(ctx, src, dir, path)
	return records, newETag, true, err
}

func (i *Ingestor) buildExport(ctx context.Context, src catalog.SourceConfig, dir string) ([]model.ExclusionRecord, error) {
	pattern, err := regexp.Compile(src.Export.ReadyURLPattern)
	if err != nil {
		return nil, newError(KindConfig, src.ID, eris.Wrap(err, "ingest: compile ready pattern"))
	}

	path := filepath.Join(dir, "artifact")
	_, err = fetcher.Export(ctx, i.fetcher, src.ResolvedURL(), path, fetcher.ExportOptions{
		ReadyPattern: pattern,
		InitialWait:  src.Export.InitialWait,
		PollInterval: src.Export.PollInterval,
		Timeout:      src.Export.Timeout,
		APIKey:       src.APIKey,
	})
	if err != nil {
		return nil, fetchError(src.ID, err)
	}
	return i.parseArtifact(ctx, src, dir, path)
}

// parseArtifact unzips when needed and dispatches on format.
func (i *Ingestor) parseArtifact(ctx context.Context, src catalog.SourceConfig, dir, path string) ([]model.ExclusionRecord, error) {
	// XLSX files are ZIP containers themselves.
	if src.Zipped || (src.Format != catalog.FormatXLSX && fetcher.IsZIP(path)) {
		member, err := fetcher.ExtractZIPMember(path, filepath.Join(dir, "unzipped"), memberExts(src.Format)...)
		if err != nil {
			return nil, newError(KindParse, src.ID, err)
		}
		path = member
	}

	switch src.Format {
	case catalog.FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, newError(KindParse, src.ID, eris.Wrap(err, "ingest: open artifact"))
		}
		defer f.Close() //nolint:errcheck
		return parseCSV(ctx, src, f)
	case catalog.FormatXLSX:
		return parseXLSX(src, path)
	case catalog.FormatOFACXML:
		f, err := os.Open(path)
		if err != nil {
			return nil, newError(KindParse, src.ID, eris.Wrap(err, "ingest: open artifact"))
		}
		defer f.Close() //nolint:errcheck
		return parseOFAC(ctx, src, f)
	default:
		return nil, newError(KindConfig, src.ID, eris.Errorf("format %q is not a file format", src.Format))
	}
}

func memberExts(f catalog.Format) []string {
	switch f {
	case catalog.FormatXLSX:
		return []string{".xlsx"}
	case catalog.FormatOFACXML:
		return []string{".xml"}
	default:
		return []string{".csv", ".txt"}
	}
}

func parseCSV(ctx context.Context, src catalog.SourceConfig, r io.Reader) ([]model.ExclusionRecord, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	b := &tabularBuilder{src: src}
	var addErr error
	for row := range rowCh {
		if addErr != nil {
			continue
		}
		addErr = b.add(row)
	}
	if err := <-errCh; err != nil {
		return nil, newError(KindParse, src.ID, err)
	}
	if addErr != nil {
		return nil, addErr
	}
	return b.finish()
}

func parseXLSX(src catalog.SourceConfig, path string) ([]model.ExclusionRecord, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: src.Sheet})
	if err != nil {
		return nil, newError(KindParse, src.ID, err)
	}
	b := &tabularBuilder{src: src}
	for _, row := range rows {
		if err := b.add(row); err != nil {
			return nil, err
		}
	}
	return b.finish()
}

func (b *tabularBuilder) finish() ([]model.ExclusionRecord, error) {
	if b.cols == nil {
		return nil, newError(KindEmptyPayload, b.src.ID, eris.New("no header row"))
	}
	zap.L().Debug("ingest: rows parsed",
		zap.String("source", b.src.ID),
		zap.Int("rows", b.rows),
		zap.Int("skipped", b.skipped),
	)
	return b.records, nil
}

func writeArtifact(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: create artifact")
	}
	defer f.Close() //nolint:errcheck
	n, err := io.Copy(f, r)
	if err != nil {
		return n, eris.Wrap(err, "ingest: write artifact")
	}
	return n, nil
}
