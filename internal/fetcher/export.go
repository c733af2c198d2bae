package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExportTimeout means the provider never made the export available.
var ErrExportTimeout = eris.New("fetcher: export not ready before timeout")

// ErrNoExportURL means the request response did not name a download URL.
var ErrNoExportURL = eris.New("fetcher: export response has no download url")

// ExportOptions configures a two-phase export: request, wait, then poll.
type ExportOptions struct {
	// ReadyPattern finds the download URL in the request response body.
	ReadyPattern *regexp.Regexp
	InitialWait  time.Duration
	PollInterval time.Duration
	// Timeout bounds the whole export. Applied only when ctx has no deadline.
	Timeout time.Duration
	// APIKey replaces key placeholders in the download URL.
	APIKey string
}

// keyPlaceholders are the tokens providers leave in the download URL.
var keyPlaceholders = []string{"REPLACE_WITH_API_KEY", "{api_key}"}

// notReady reports statuses some providers return while preparing a file.
func notReady(code int) bool {
	switch code {
	case http.StatusAccepted, http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// Export requests an export at requestURL and writes the prepared file to
// destPath once available. Returns bytes written.
func Export(ctx context.Context, f Fetcher, requestURL, destPath string, opts ExportOptions) (int64, error) {
	if opts.ReadyPattern == nil {
		return 0, eris.New("fetcher: export needs a ready pattern")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Minute
	}

	pollCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	downloadURL, err := requestExport(pollCtx, f, requestURL, opts)
	if err != nil {
		return 0, err
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", redactURL(downloadURL)))
	log.Info("fetcher: export requested, waiting for provider", zap.Duration("initial_wait", opts.InitialWait))

	if err := sleep(pollCtx, opts.InitialWait); err != nil {
		return 0, exportWaitErr(ctx, err)
	}

	for attempt := 1; ; attempt++ {
		n, err := f.DownloadToFile(pollCtx, downloadURL, destPath)
		if err == nil {
			log.Info("fetcher: export downloaded", zap.Int("polls", attempt), zap.Int64("bytes", n))
			return n, nil
		}

		var se *StatusError
		if !errors.As(err, &se) || !notReady(se.Code) {
			if pollCtx.Err() != nil {
				return 0, exportWaitErr(ctx, pollCtx.Err())
			}
			return 0, eris.Wrap(err, "fetcher: export download")
		}

		log.Debug("fetcher: export not ready", zap.Int("status", se.Code), zap.Int("poll", attempt))
		if err := sleep(pollCtx, opts.PollInterval); err != nil {
			return 0, exportWaitErr(ctx, err)
		}
	}
}

func requestExport(ctx context.Context, f Fetcher, requestURL string, opts ExportOptions) (string, error) {
	body, err := f.Download(ctx, requestURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: export request")
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read export response")
	}

	found := opts.ReadyPattern.Find(data)
	if found == nil {
		return "", ErrNoExportURL
	}
	downloadURL := string(found)
	for _, p := range keyPlaceholders {
		downloadURL = strings.ReplaceAll(downloadURL, p, opts.APIKey)
	}
	return downloadURL, nil
}

// exportWaitErr maps our own deadline to ErrExportTimeout and leaves caller
// cancellation alone.
func exportWaitErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return eris.Wrap(parent.Err(), "fetcher: export cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrExportTimeout
	}
	return eris.Wrap(err, "fetcher: export wait")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
