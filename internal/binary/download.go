package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/power"
)

const (
	// DefaultConnectTimeout bounds establishing the TCP connection.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTimeout bounds a whole artifact download.
	DefaultTimeout = 5 * time.Minute
	// DefaultChunkSize is the read size for response bodies.
	DefaultChunkSize = 4 * 1024
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "cubekeeper/1.0"

	maxRedirects = 10
)

// Fetcher downloads a URL to a file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string, timeout time.Duration) error
}

// DownloaderConfig configures a Downloader. Zero values select defaults.
type DownloaderConfig struct {
	ConnectTimeout time.Duration
	ChunkSize      int
	UserAgent      string
	// Progress receives (bytesSoFar, total) after every chunk when the
	// response carries a Content-Length.
	Progress  ProgressFunc
	Inhibitor power.Inhibitor
	Metrics   metrics.Recorder
	Logger    logging.Logger
}

// Downloader streams HTTP downloads to files.
type Downloader struct {
	client    *http.Client
	chunkSize int
	userAgent string
	progress  ProgressFunc
	inhibitor power.Inhibitor
	logger    logging.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Inhibitor == nil {
		cfg.Inhibitor = power.Noop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return &Downloader{
		client: &http.Client{
			Transport: metrics.OrNoop(cfg.Metrics).RoundTripper(transport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		chunkSize: cfg.ChunkSize,
		userAgent: cfg.UserAgent,
		progress:  cfg.Progress,
		inhibitor: cfg.Inhibitor,
		logger:    logging.OrNoop(cfg.Logger),
	}
}

// Download fetches url into dest, overwriting it. A timeout of zero means
// no overall deadline.
//
// Errors are *DownloadError. A partially written dest is left in place for
// the caller to remove.
func (d *Downloader) Download(ctx context.Context, url, dest string, timeout time.Duration) error {
	release, err := d.inhibitor.Acquire(ctx, "downloading "+filepath.Base(dest))
	if err != nil {
		d.logger.Debug("sleep inhibitor unavailable", "error", err)
	}
	defer release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	d.logger.Debug("downloading", "url", url, "dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{Kind: DownloadIO, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return classify(url, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{
			Kind:    DownloadHTTPStatus,
			URL:     url,
			Code:    resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &DownloadError{Kind: DownloadIO, URL: url, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &DownloadError{Kind: DownloadIO, URL: url, Err: fmt.Errorf("create file: %w", err)}
	}

	written, copyErr := d.copy(out, resp.Body, resp.ContentLength)
	closeErr := out.Close()
	if copyErr != nil {
		return classify(url, copyErr)
	}
	if closeErr != nil {
		return &DownloadError{Kind: DownloadIO, URL: url, Err: fmt.Errorf("close file: %w", closeErr)}
	}

	d.logger.Debug("downloaded", "url", url, "bytes", written)
	return nil
}

// copy streams body into out in chunkSize reads and reports progress when
// total is known.
func (d *Downloader) copy(out io.Writer, body io.Reader, total int64) (int64, error) {
	buf := make([]byte, d.chunkSize)
	var written int64

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write file: %w", err)
			}
			written += int64(n)
			if total > 0 && d.progress != nil {
				d.progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read body: %w", readErr)
		}
	}
}

// classify maps transport failures onto DownloadError kinds.
func classify(url string, err error) *DownloadError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &DownloadError{Kind: DownloadTimeout, URL: url, Err: err}
	}
	return &DownloadError{Kind: DownloadIO, URL: url, Err: err}
}
