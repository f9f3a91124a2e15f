package resource

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/codes"
)

// OfficeDocument is what the Office web viewer needs to fetch a
// document directly: the raw download URL and the access token the
// viewer frame was handed.
type OfficeDocument struct {
	DownloadURL string
	AccessToken string
}

const officeFramesJS = `() => {
	return Array.from(document.querySelectorAll('iframe')).map(f => f.src);
}`

// OfficeDocumentAccess extracts the viewer frame's download URL and
// access token from the resolved resource page. Office resources embed
// a viewer iframe whose src carries both as query parameters.
func (res *Resolution) OfficeDocumentAccess(ctx context.Context) (OfficeDocument, error) {
	ctx, span := tracer.Start(ctx, "OfficeDocumentAccess")
	defer span.End()

	val, err := res.session.Eval(ctx, officeFramesJS)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list frames")
		return OfficeDocument{}, err
	}

	for _, frame := range val.Arr() {
		src := frame.Str()
		doc, ok := officeDocumentFromFrameURL(src)
		if ok {
			return doc, nil
		}
	}

	span.SetStatus(codes.Error, "no office viewer frame on resource page")
	return OfficeDocument{}, fmt.Errorf("%w: no office viewer frame on resource page", ErrUnresolvableResource)
}

func officeDocumentFromFrameURL(src string) (OfficeDocument, bool) {
	u, err := url.Parse(src)
	if err != nil {
		return OfficeDocument{}, false
	}
	q := u.Query()
	token := q.Get("access_token")
	if token == "" {
		return OfficeDocument{}, false
	}

	downloadUrl := q.Get("url")
	if downloadUrl == "" {
		// fall back to the frame itself, stripped of the token
		q.Del("access_token")
		u.RawQuery = q.Encode()
		downloadUrl = u.String()
	}

	return OfficeDocument{
		DownloadURL: downloadUrl,
		AccessToken: token,
	}, true
}
