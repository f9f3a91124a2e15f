// Package transfer fetches resolved resource URLs: small payloads into
// memory, large ones streamed to a writer or a file with progress
// callbacks. Transfers carry the cookies a resolution produced, so the
// portal's CDN accepts them without another SSO round trip.
package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"itsdu-backend/lib/cookieutil"
	"itsdu-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/transfer")

// ErrTransferFailed wraps every non-2xx response and mid-stream failure.
var ErrTransferFailed = fmt.Errorf("transfer failed")

// UnknownTotal is the Progress.Total value for responses without a
// usable Content-Length.
const UnknownTotal = -1

// Progress is a point-in-time snapshot of a running transfer.
type Progress struct {
	// Total is the expected byte count, or UnknownTotal.
	Total int64
	// Loaded is the byte count received so far.
	Loaded int64
}

// Percent reports completion as a whole percentage. It reports false
// when the total is unknown; callers should fall back to a byte count.
func (p Progress) Percent() (int, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	return int(p.Loaded * 100 / p.Total), true
}

const streamChunkSize = 64 * 1024

type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	client := resty.New()
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	// no overall timeout: streamed transfers legitimately run for
	// minutes, cancellation happens through the context
	telemetry.InstrumentResty(client, "lib/transfer")

	return &Client{http: client}
}

// Buffered fetches the whole payload into memory. Meant for pages and
// small files; use Stream or Download for media.
func (c *Client) Buffered(ctx context.Context, target string, cookies []cookieutil.Cookie) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Buffered")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("cookie", cookieutil.FormatHeader(cookies)).
		Get(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, res.Status())
	}
	return res.Body(), nil
}

// Stream copies the payload into dst as it arrives. onProgress, when
// non-nil, is invoked after every chunk with a monotonically growing
// snapshot; the first call happens before any bytes for a zero-loaded
// baseline.
func (c *Client) Stream(
	ctx context.Context,
	target string,
	cookies []cookieutil.Cookie,
	dst io.Writer,
	onProgress func(Progress),
) error {
	ctx, span := tracer.Start(ctx, "Stream")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("cookie", cookieutil.FormatHeader(cookies)).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return fmt.Errorf("%w: %s", ErrTransferFailed, res.Status())
	}

	progress := Progress{Total: res.RawResponse.ContentLength, Loaded: 0}
	if progress.Total < 0 {
		progress.Total = UnknownTotal
	}
	span.SetAttributes(attribute.Int64("total", progress.Total))
	if onProgress != nil {
		onProgress(progress)
	}

	buf := make([]byte, streamChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				span.RecordError(werr)
				span.SetStatus(codes.Error, "write failed")
				return fmt.Errorf("%w: %s", ErrTransferFailed, werr)
			}
			progress.Loaded += int64(n)
			if onProgress != nil {
				onProgress(progress)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream interrupted")
			return fmt.Errorf("%w: %s", ErrTransferFailed, err)
		}
	}
}

// Download streams the payload into dir and returns the final path. The
// file lands under its server-provided name when the response carries
// one, under the URL's base name otherwise. Partial files never
// survive: the payload goes to a temp file first and only a complete
// transfer gets renamed into place.
func (c *Client) Download(
	ctx context.Context,
	target string,
	cookies []cookieutil.Cookie,
	dir string,
	onProgress func(Progress),
) (string, error) {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("cookie", cookieutil.FormatHeader(cookies)).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return "", fmt.Errorf("%w: %s", ErrTransferFailed, res.Status())
	}

	name := filenameFor(target, res.Header().Get("content-disposition"))
	span.SetAttributes(attribute.String("filename", name))

	tmp, err := os.CreateTemp(dir, ".itsdu-download-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp file")
		return "", err
	}

	progress := Progress{Total: res.RawResponse.ContentLength, Loaded: 0}
	if progress.Total < 0 {
		progress.Total = UnknownTotal
	}
	if onProgress != nil {
		onProgress(progress)
	}

	buf := make([]byte, streamChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				discard(tmp)
				span.RecordError(werr)
				span.SetStatus(codes.Error, "write failed")
				return "", fmt.Errorf("%w: %s", ErrTransferFailed, werr)
			}
			progress.Loaded += int64(n)
			if onProgress != nil {
				onProgress(progress)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			discard(tmp)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "stream interrupted")
			return "", fmt.Errorf("%w: %s", ErrTransferFailed, rerr)
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to move download into place")
		return "", err
	}
	return final, nil
}

func discard(tmp *os.File) {
	tmp.Close()
	os.Remove(tmp.Name())
}

// filenameFor picks a safe file name, preferring the server-provided
// Content-Disposition one.
func filenameFor(target, contentDisposition string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(target); err == nil {
		if name := sanitizeFilename(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return fmt.Sprintf("download-%d", time.Now().Unix())
}

// sanitizeFilename strips path components a hostile server might smuggle
// into a suggested name.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "/" {
		return ""
	}
	return name
}
