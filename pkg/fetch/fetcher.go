package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"mdimg/pkg/config"
	"mdimg/pkg/utils"
)

// copyChunkSize is the buffer size used when streaming a response body to disk.
const copyChunkSize = 8 * 1024

// retryableStatus reports whether an HTTP status code is a transient failure
// worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

// Fetcher downloads remote images with retry and linear backoff, using an
// underlying http.Client shared across documents. When an access token is
// configured every request carries Basic auth with an empty username, the
// usual shape for PAT-authenticated artifact hosts.
type Fetcher struct {
	client     *http.Client
	cfg        *config.Config
	authHeader string // Precomputed "Basic ..." value, empty when no token is configured
	log        *logrus.Entry
}

// NewFetcher creates a new Fetcher instance.
func NewFetcher(client *http.Client, cfg *config.Config, log *logrus.Entry) *Fetcher {
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
	if cfg.AccessToken != "" {
		f.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.AccessToken))
	}
	return f
}

// Download performs an HTTP GET for rawURL and saves the body under destDir,
// returning the path of the saved file. Transient failures (network errors
// and retryable status codes) are retried up to the configured budget with a
// linearly increasing delay between attempts. A file of the derived name that
// already exists with non-zero size short-circuits the save and is returned
// as-is.
//
// On exhaustion the failure is logged at Warn level and an error wrapping
// utils.ErrRetryFailed is returned; callers treat this as non-fatal and leave
// the source reference unrewritten.
func (f *Fetcher) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating image directory '%s': %w", utils.ErrFilesystem, destDir, err)
	}

	reqLog := f.log.WithField("url", rawURL)
	var lastErr error

	// Try up to MaxRetries+1 times (initial attempt + retries)
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * f.cfg.RetryDelay
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.cfg.MaxRetries, "delay": delay}).Warn("Retrying download...")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if lastErr != nil {
					return "", fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
				}
				return "", fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		localPath, err := f.attempt(ctx, rawURL, destDir, reqLog)
		if err == nil {
			return localPath, nil
		}
		// Context errors are not retryable
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		lastErr = err
		reqLog.WithField("attempt", attempt).Debugf("Download attempt failed: %v", err)
	}

	wrapped := fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	reqLog.Warnf("Download failed after %d attempt(s) [%s]: %v", f.cfg.MaxRetries+1, utils.CategorizeError(wrapped), lastErr)
	return "", wrapped
}

// attempt performs one GET and saves the body when the status is 2xx. All
// non-2xx statuses are attempt failures; retryableStatus only decides which
// sentinel the error wraps.
func (f *Fetcher) attempt(ctx context.Context, rawURL, destDir string, reqLog *logrus.Entry) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: '%s': %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.authHeader != "" {
		req.Header.Set("Authorization", f.authHeader)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		// Drain before closing to allow connection reuse
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		// Proceed to save below
	case retryableStatus(code):
		if code >= 500 {
			return "", fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, code, resp.Status)
		}
		return "", fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	case code >= 400 && code < 500:
		return "", fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	default:
		return "", fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, code, resp.Status)
	}

	filename := LocalFilename(rawURL, resp.Header.Get("Content-Type"), reqLog)
	localPath := filepath.Join(destDir, filename)

	// A pre-existing non-empty file of the derived name counts as already
	// fetched; never overwrite it
	if info, statErr := os.Stat(localPath); statErr == nil && info.Size() > 0 {
		reqLog.Debugf("Reusing existing file %s (%d bytes)", localPath, info.Size())
		return localPath, nil
	}

	if err := saveBody(resp.Body, localPath); err != nil {
		return "", err
	}
	reqLog.Debugf("Saved %s", localPath)
	return localPath, nil
}

// saveBody streams body to localPath in fixed-size chunks. No partial file is
// left behind on error.
func saveBody(body io.Reader, localPath string) error {
	outFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: creating image file '%s': %w", utils.ErrFilesystem, localPath, err)
	}

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(outFile, body, buf); err != nil {
		outFile.Close() // Close explicitly before remove (Windows)
		os.Remove(localPath)
		return fmt.Errorf("%w: writing image file '%s': %w", utils.ErrFilesystem, localPath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("%w: closing image file '%s' after write: %w", utils.ErrFilesystem, localPath, err)
	}
	return nil
}
