// Package fetch downloads a URL to disk in parallel byte ranges, resuming
// each range from its last written offset on failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunks  = 8
	DefaultRetries = 10
	// DefaultUserAgent is a desktop browser string; some CDNs throttle or
	// reject unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ProgressFunc receives the number of bytes written so far and the total
// (or -1 when unknown). It is called from several goroutines.
type ProgressFunc func(done, total int64)

// Result describes a completed download.
type Result struct {
	Path  string
	Bytes int64
}

// Downloader performs ranged parallel downloads.
type Downloader struct {
	client     *http.Client
	chunks     int
	retries    int
	userAgent  string
	retryDelay time.Duration
	log        hclog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithClient sets the HTTP client. The default honors HTTP(S)_PROXY.
func WithClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// WithChunks sets the number of parallel ranges.
func WithChunks(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.chunks = n
		}
	}
}

// WithRetries sets how many times one range is retried.
func WithRetries(n int) Option {
	return func(d *Downloader) {
		if n >= 0 {
			d.retries = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithRetryDelay sets the base backoff between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Downloader) { d.retryDelay = delay }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(d *Downloader) { d.log = l }
}

// New returns a Downloader with 8 ranges and 10 retries per range.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		chunks:     DefaultChunks,
		retries:    DefaultRetries,
		userAgent:  DefaultUserAgent,
		retryDelay: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyFromEnvironment}}
	}
	if d.log == nil {
		d.log = hclog.NewNullLogger()
	}
	d.log = d.log.Named("fetch")
	return d
}

// Download writes url to dest. Data goes to dest+".part" first and is
// renamed into place once every range completes.
func (d *Downloader) Download(ctx context.Context, url, dest string, onProgress ProgressFunc) (Result, error) {
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	total, ranged, err := d.probe(ctx, url)
	if err != nil {
		return Result{}, err
	}
	part := dest + ".part"
	f, err := os.OpenFile(part, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", part, err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(part)
	}

	var written int64
	if ranged && total > 0 {
		if err := f.Truncate(total); err != nil {
			cleanup()
			return Result{}, fmt.Errorf("preallocate: %w", err)
		}
		written, err = d.ranged(ctx, url, f, total, onProgress)
	} else {
		d.log.Debug("server does not support ranges; single stream", "url", url)
		written, err = d.single(ctx, url, f, total, onProgress)
	}
	if err != nil {
		cleanup()
		return Result{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return Result{}, err
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return Result{}, fmt.Errorf("rename download: %w", err)
	}
	onProgress(written, written)
	return Result{Path: dest, Bytes: written}, nil
}

// probe asks for the first byte to learn the size and whether ranges work.
func (d *Downloader) probe(ctx context.Context, url string) (total int64, ranged bool, err error) {
	req, err := d.newRequest(ctx, url)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if n, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			return n, true, nil
		}
		return -1, false, nil
	case http.StatusOK:
		return resp.ContentLength, false, nil
	default:
		return 0, false, &StatusError{Code: resp.StatusCode, URL: url}
	}
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (d *Downloader) ranged(ctx context.Context, url string, f *os.File, total int64, onProgress ProgressFunc) (int64, error) {
	chunks := int64(d.chunks)
	if total < chunks {
		chunks = 1
	}
	size := total / chunks
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := int64(0); i < chunks; i++ {
		start := i * size
		end := start + size - 1
		if i == chunks-1 {
			end = total - 1
		}
		g.Go(func() error {
			return d.fetchRange(gctx, url, f, start, end, func(n int64) {
				onProgress(done.Add(n), total)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return done.Load(), err
	}
	return total, nil
}

// fetchRange downloads [start,end] into f, resuming after partial reads.
func (d *Downloader) fetchRange(ctx context.Context, url string, f *os.File, start, end int64, add func(int64)) error {
	offset := start
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			d.log.Debug("retrying range", "start", start, "offset", offset, "end", end, "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, d.retryDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
		n, err := d.copyRange(ctx, url, f, offset, end, add)
		offset += n
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("range %d-%d: giving up after %d retries: %w", start, end, d.retries, lastErr)
}

func (d *Downloader) copyRange(ctx context.Context, url string, f *os.File, offset, end int64, add func(int64)) (int64, error) {
	req, err := d.newRequest(ctx, url)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, &StatusError{Code: resp.StatusCode, URL: url}
	}
	want := end - offset + 1
	w := io.NewOffsetWriter(f, offset)
	n, err := copyCounting(w, io.LimitReader(resp.Body, want), add)
	if err == nil && n < want {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// single streams the whole body; without range support a failed attempt
// restarts from zero.
func (d *Downloader) single(ctx context.Context, url string, f *os.File, total int64, onProgress ProgressFunc) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.retryDelay*time.Duration(attempt)); err != nil {
				return 0, err
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return 0, err
			}
			if err := f.Truncate(0); err != nil {
				return 0, err
			}
		}
		var done int64
		n, err := d.copyAll(ctx, url, f, func(k int64) {
			done += k
			onProgress(done, total)
		})
		if err == nil {
			return n, nil
		}
		lastErr = err
		if !retryable(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("giving up after %d retries: %w", d.retries, lastErr)
}

func (d *Downloader) copyAll(ctx context.Context, url string, f *os.File, add func(int64)) (int64, error) {
	req, err := d.newRequest(ctx, url)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode, URL: url}
	}
	n, err := copyCounting(f, resp.Body, add)
	if err == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (d *Downloader) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	return req, nil
}

func copyCounting(w io.Writer, r io.Reader, add func(int64)) (int64, error) {
	buf := make([]byte, 64*1024)
	var n int64
	for {
		k, rerr := r.Read(buf)
		if k > 0 {
			m, werr := w.Write(buf[:k])
			n += int64(m)
			add(int64(m))
			if werr != nil {
				return n, werr
			}
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

// parseContentRangeTotal extracts N from "bytes 0-0/N".
func parseContentRangeTotal(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || v[i+1:] == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
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
