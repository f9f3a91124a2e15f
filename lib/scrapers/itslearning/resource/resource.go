// Package resource resolves opaque itslearning element identifiers into
// authenticated, directly fetchable URLs. Resolution drives a hidden
// browser session through the portal's SSO hop and reads the state the
// redirect chain leaves behind: the landing URL and the cookie jar.
package resource

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"itsdu-backend/lib/cookieutil"
	"itsdu-backend/lib/htmlutil"
	"itsdu-backend/lib/scrapers/itslearning"
	"itsdu-backend/lib/scrapers/itslearning/auth"
	"itsdu-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/ysmood/gson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/itslearning/resource")

var (
	// ErrAuthLink means the portal's SSO endpoint refused to mint a link.
	ErrAuthLink = fmt.Errorf("failed to mint an sso link")
	// ErrUnresolvableResource means the redirect chain or the rendered
	// page did not yield a usable target.
	ErrUnresolvableResource = fmt.Errorf("resource did not resolve to a fetchable url")
	// ErrMediaNotFound means an expected element was absent during the
	// frame walk of a media resource.
	ErrMediaNotFound = fmt.Errorf("no playable media found")
)

// Reference identifies a remote resource by its opaque element id.
type Reference struct {
	ElementID string
}

// ResolvedLink is an authenticated URL plus the cookies required to use
// it. Both always originate from the same hidden session; a ResolvedLink
// is only ever built from one session's post-navigation state.
type ResolvedLink struct {
	URL     string
	Cookies []cookieutil.Cookie
}

// Session is the slice of a hidden browser session the resolver needs.
// *browser.Session satisfies it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, js string) (gson.JSON, error)
	Location(ctx context.Context) (string, error)
	BodyHTML(ctx context.Context) (string, error)
	CookiesForDomain(ctx context.Context, originURL string) ([]cookieutil.Cookie, error)
	Close()
}

// SessionSource hands out fresh isolated sessions.
type SessionSource interface {
	Acquire(ctx context.Context) (Session, error)
}

type Resolver struct {
	http     *resty.Client
	tokens   auth.TokenSource
	sessions SessionSource
	baseUrl  string
}

type ResolverOptions struct {
	// BaseUrl overrides the portal instance, used by tests.
	BaseUrl string
}

func NewResolver(sessions SessionSource, tokens auth.TokenSource, opts ResolverOptions) *Resolver {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = itslearning.BaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/itslearning/resource")

	return &Resolver{
		http:     client,
		tokens:   tokens,
		sessions: sessions,
		baseUrl:  baseUrl,
	}
}

// ElementURL builds the portal URL of a learning tool element.
func (r *Resolver) ElementURL(ref Reference) string {
	return fmt.Sprintf(
		"%s/LearningToolElement/ViewLearningToolElement.aspx?LearningToolElementId=%s",
		r.baseUrl, url.QueryEscape(ref.ElementID),
	)
}

// SSOLink asks the portal to wrap the given URL into a short-lived
// authenticated one.
func (r *Resolver) SSOLink(ctx context.Context, target string) (string, error) {
	ctx, span := tracer.Start(ctx, "SSOLink")
	defer span.End()
	span.SetAttributes(attribute.String("target", target))

	token, err := r.tokens.Token(ctx, auth.AccessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no access token")
		return "", fmt.Errorf("%w: %s", ErrAuthLink, err)
	}

	var out struct {
		Url string `json:"Url"`
	}
	res, err := r.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_token": token,
			"url":          target,
		}).
		SetResult(&out).
		Get("/restapi/personal/sso/url/v1")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sso endpoint unreachable")
		return "", fmt.Errorf("%w: %s", ErrAuthLink, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "sso endpoint rejected the request")
		return "", fmt.Errorf("%w: %s", ErrAuthLink, res.Status())
	}
	if out.Url == "" {
		span.SetStatus(codes.Error, "sso response carried no redirect target")
		return "", fmt.Errorf("%w: sso response carried no redirect target", ErrUnresolvableResource)
	}
	return out.Url, nil
}

// Resolution is an in-flight resolve: a session that has navigated
// through the SSO hop and is still parked on the resource page. Callers
// must Close it on every exit path.
type Resolution struct {
	Link    ResolvedLink
	session Session
}

func (r *Resolution) Close() {
	r.session.Close()
}

// Start resolves a reference and keeps the session open so follow-up
// extraction (download link, media walk, office frame) can run against
// the already rendered page.
func (r *Resolver) Start(ctx context.Context, ref Reference) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "Start")
	defer span.End()
	span.SetAttributes(attribute.String("element_id", ref.ElementID))

	ssoLink, err := r.SSOLink(ctx, r.ElementURL(ref))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	session, err := r.sessions.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire a hidden session")
		return nil, err
	}

	res, err := r.finishResolve(ctx, session, ssoLink)
	if err != nil {
		session.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (r *Resolver) finishResolve(ctx context.Context, session Session, ssoLink string) (*Resolution, error) {
	// sequencing matters: the cookie jar and the landing URL are only
	// meaningful once the SSO redirect chain has fully settled
	if err := session.Navigate(ctx, ssoLink); err != nil {
		return nil, err
	}
	location, err := session.Location(ctx)
	if err != nil {
		return nil, err
	}
	if location == "" {
		return nil, fmt.Errorf("%w: redirect chain left no landing url", ErrUnresolvableResource)
	}
	cookies, err := session.CookiesForDomain(ctx, itslearning.ResourceURL)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Link: ResolvedLink{
			URL:     location,
			Cookies: cookies,
		},
		session: session,
	}, nil
}

// Resolve is Start for callers that only need the link and cookies.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (ResolvedLink, error) {
	res, err := r.Start(ctx, ref)
	if err != nil {
		return ResolvedLink{}, err
	}
	defer res.Close()
	return res.Link, nil
}

// DownloadLink scrapes the direct file URL out of the rendered resource
// page. The portal renders a download anchor somewhere in the page body;
// its exact position is not versioned, so anchors are matched by href.
func (res *Resolution) DownloadLink(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "DownloadLink")
	defer span.End()

	body, err := res.session.BodyHTML(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read page body")
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse page html")
		return "", err
	}

	anchors := htmlutil.GetAnchors(ctx, doc.Find("a[href]"))
	for _, a := range anchors {
		if strings.Contains(strings.ToLower(a.Href), "download") {
			return res.absoluteURL(a.Href), nil
		}
	}

	span.SetStatus(codes.Error, "no download anchor on resource page")
	return "", fmt.Errorf("%w: no download anchor on resource page", ErrUnresolvableResource)
}

func (res *Resolution) absoluteURL(href string) string {
	base, err := url.Parse(res.Link.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
