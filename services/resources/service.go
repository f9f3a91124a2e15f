// Package resources is the orchestration layer: it turns element
// references and course ids into resolved links, parsed plans, and
// finished transfers, coordinating hidden browser sessions, the SSO
// resolver, and the transfer client.
package resources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"itsdu-backend/lib/browser"
	"itsdu-backend/lib/cookieutil"
	"itsdu-backend/lib/scrapers/itslearning"
	"itsdu-backend/lib/scrapers/itslearning/auth"
	"itsdu-backend/lib/scrapers/itslearning/planner"
	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/telemetry"
	"itsdu-backend/lib/transfer"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/resources")

// sessionSource narrows *browser.Manager to the session interface the
// resolver consumes.
type sessionSource struct {
	manager *browser.Manager
}

func (s sessionSource) Acquire(ctx context.Context) (resource.Session, error) {
	return s.manager.Acquire(ctx)
}

type Service struct {
	sessions resource.SessionSource
	resolver *resource.Resolver
	transfer *transfer.Client
	http     *resty.Client
	baseUrl  string
}

type Options struct {
	// BaseUrl overrides the portal instance, used by tests.
	BaseUrl string
}

func NewService(sessions *browser.Manager, tokens auth.TokenSource, opts Options) *Service {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = itslearning.BaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "services/resources")

	source := sessionSource{manager: sessions}
	return &Service{
		sessions: source,
		resolver: resource.NewResolver(source, tokens, resource.ResolverOptions{
			BaseUrl: baseUrl,
		}),
		transfer: transfer.NewClient(),
		http:     client,
		baseUrl:  baseUrl,
	}
}

// GetSSOURL wraps an arbitrary portal URL into a short-lived
// authenticated link.
func (s *Service) GetSSOURL(ctx context.Context, target string) (string, error) {
	return s.resolver.SSOLink(ctx, target)
}

// GetResourceFile resolves an element down to its direct file URL plus
// the cookies needed to fetch it.
func (s *Service) GetResourceFile(ctx context.Context, ref resource.Reference) (resource.ResolvedLink, error) {
	ctx, span := tracer.Start(ctx, "GetResourceFile")
	defer span.End()
	span.SetAttributes(attribute.String("element_id", ref.ElementID))

	res, err := s.resolver.Start(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resource.ResolvedLink{}, err
	}
	defer res.Close()

	fileURL, err := res.DownloadLink(ctx)
	if err != nil {
		// not every element renders a download anchor; the landing
		// page itself is still a usable target
		slog.WarnContext(ctx, "no download anchor, falling back to landing url",
			"element_id", ref.ElementID, "err", err)
		return res.Link, nil
	}

	return resource.ResolvedLink{URL: fileURL, Cookies: res.Link.Cookies}, nil
}

// GetBlob resolves an element and fetches its whole payload into
// memory.
func (s *Service) GetBlob(ctx context.Context, ref resource.Reference) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "GetBlob")
	defer span.End()

	link, err := s.GetResourceFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.transfer.Buffered(ctx, link.URL, link.Cookies)
}

// GetMediaURL walks a media element's player frames down to the
// playable source URL.
func (s *Service) GetMediaURL(ctx context.Context, ref resource.Reference) (string, error) {
	ctx, span := tracer.Start(ctx, "GetMediaURL")
	defer span.End()
	span.SetAttributes(attribute.String("element_id", ref.ElementID))

	res, err := s.resolver.Start(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer res.Close()

	return res.MediaURL(ctx)
}

// GetOfficeDocument extracts the Office viewer's direct download URL
// and access token from a document element.
func (s *Service) GetOfficeDocument(ctx context.Context, ref resource.Reference) (resource.OfficeDocument, error) {
	ctx, span := tracer.Start(ctx, "GetOfficeDocument")
	defer span.End()
	span.SetAttributes(attribute.String("element_id", ref.ElementID))

	res, err := s.resolver.Start(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resource.OfficeDocument{}, err
	}
	defer res.Close()

	return res.OfficeDocumentAccess(ctx)
}

// StreamResource resolves an element and streams its payload into dst.
func (s *Service) StreamResource(
	ctx context.Context,
	ref resource.Reference,
	dst io.Writer,
	onProgress func(transfer.Progress),
) error {
	ctx, span := tracer.Start(ctx, "StreamResource")
	defer span.End()

	link, err := s.GetResourceFile(ctx, ref)
	if err != nil {
		return err
	}
	return s.transfer.Stream(ctx, link.URL, link.Cookies, dst, onProgress)
}

// DownloadResource resolves an element and downloads its payload into
// dir, returning the final file path.
func (s *Service) DownloadResource(
	ctx context.Context,
	ref resource.Reference,
	dir string,
	onProgress func(transfer.Progress),
) (string, error) {
	ctx, span := tracer.Start(ctx, "DownloadResource")
	defer span.End()

	link, err := s.GetResourceFile(ctx, ref)
	if err != nil {
		return "", err
	}
	return s.transfer.Download(ctx, link.URL, link.Cookies, dir, onProgress)
}

// DownloadExternal downloads an already fetchable URL, no resolution
// and no portal cookies.
func (s *Service) DownloadExternal(
	ctx context.Context,
	target string,
	dir string,
	onProgress func(transfer.Progress),
) (string, error) {
	return s.transfer.Download(ctx, target, nil, dir, onProgress)
}

// plannerURL builds the planner page URL of a course. Filter=-1 shows
// every topic regardless of state.
func (s *Service) plannerURL(courseID string) string {
	return fmt.Sprintf("%s/Planner/Planner.aspx?CourseID=%s&Filter=-1", s.baseUrl, courseID)
}

// GetCoursePlans renders a course's planner page in a hidden session
// and parses its topic list.
func (s *Service) GetCoursePlans(ctx context.Context, courseID string) ([]planner.CoursePlanEntry, error) {
	ctx, span := tracer.Start(ctx, "GetCoursePlans")
	defer span.End()
	span.SetAttributes(attribute.String("course_id", courseID))

	session, html, err := s.renderPlanner(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	session.Close()

	return planner.ParseCourseTopics(ctx, html)
}

// renderPlanner navigates a fresh session through the SSO hop onto the
// course planner and returns the session still open, along with the
// rendered body.
func (s *Service) renderPlanner(ctx context.Context, courseID string) (resource.Session, string, error) {
	ssoLink, err := s.resolver.SSOLink(ctx, s.plannerURL(courseID))
	if err != nil {
		return nil, "", err
	}

	session, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := session.Navigate(ctx, ssoLink); err != nil {
		session.Close()
		return nil, "", err
	}
	html, err := session.BodyHTML(ctx)
	if err != nil {
		session.Close()
		return nil, "", err
	}
	return session, html, nil
}

// planGridRequest mirrors the payload the portal's own frontend sends
// when expanding a topic.
type planGridRequest struct {
	IsSearching          bool    `json:"isSearching"`
	SearchText           *string `json:"searchText"`
	PageNumber           int     `json:"pageNumber"`
	PageSize             int     `json:"pageSize"`
	Sort                 string  `json:"sort"`
	Filter               string  `json:"filter"`
	ChunkNumber          int     `json:"chunkNumber"`
	ChunkSize            int     `json:"chunkSize"`
	CourseID             string  `json:"courseId"`
	TopicID              string  `json:"topicId"`
	Start                string  `json:"start"`
	End                  string  `json:"end"`
	ChildID              string  `json:"childId"`
	DashboardHierarchyID string  `json:"dashboardHierarchyId"`
	DashboardName        string  `json:"dashboardName"`
	CurrentDisplayMode   string  `json:"currentDisplayMode"`
}

// GetCoursePlanElements expands one topic: it authenticates a hidden
// session against the planner to harvest portal cookies, then asks the
// plan endpoint for the topic's grid fragment and parses it.
func (s *Service) GetCoursePlanElements(ctx context.Context, courseID, topicID string) ([]planner.PlanGridRow, error) {
	ctx, span := tracer.Start(ctx, "GetCoursePlanElements")
	defer span.End()
	span.SetAttributes(
		attribute.String("course_id", courseID),
		attribute.String("topic_id", topicID),
	)

	session, _, err := s.renderPlanner(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	cookies, err := session.CookiesForDomain(ctx, s.baseUrl)
	session.Close()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read portal cookies")
		return nil, err
	}

	var out struct {
		GridData string `json:"gridData"`
	}
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("cookie", cookieutil.FormatHeader(cookies)).
		SetBody(planGridRequest{
			PageNumber:           1,
			PageSize:             25,
			Sort:                 "Order:asc",
			ChunkSize:            15,
			CourseID:             courseID,
			TopicID:              topicID,
			ChildID:              "0",
			DashboardHierarchyID: "0",
			CurrentDisplayMode:   "0",
		}).
		SetResult(&out).
		Post("/RestApi/planner/plan/multiple/forTopic")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan endpoint unreachable")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return nil, fmt.Errorf("plan endpoint rejected the request: %s", res.Status())
	}

	return planner.ParseGridRows(ctx, out.GridData)
}
