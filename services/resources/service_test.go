package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"itsdu-backend/lib/cookieutil"
	"itsdu-backend/lib/scrapers/itslearning/auth"
	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/transfer"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

type fakeSession struct {
	location  string
	body      string
	cookies   []cookieutil.Cookie
	navigated []string
	closed    bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Eval(ctx context.Context, js string) (gson.JSON, error) {
	return gson.New(nil), nil
}

func (s *fakeSession) Location(ctx context.Context) (string, error) {
	return s.location, nil
}

func (s *fakeSession) BodyHTML(ctx context.Context) (string, error) {
	return s.body, nil
}

func (s *fakeSession) CookiesForDomain(ctx context.Context, originURL string) ([]cookieutil.Cookie, error) {
	return s.cookies, nil
}

func (s *fakeSession) Close() { s.closed = true }

type fakeSource struct {
	session *fakeSession
}

func (f *fakeSource) Acquire(ctx context.Context) (resource.Session, error) {
	return f.session, nil
}

// fakePortal stands in for the portal: it mints SSO links pointing back
// at itself and serves the plan endpoint.
func newTestService(t *testing.T, session *fakeSession, handler http.HandlerFunc) (*Service, *httptest.Server) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("GET /restapi/personal/sso/url/v1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "token123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Url": %q}`, srv.URL+"/sso-landing?wrapped="+r.URL.Query().Get("url"))
	})
	if handler != nil {
		mux.HandleFunc("/", handler)
	}
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	source := &fakeSource{session: session}
	tokens := auth.StaticTokenSource{auth.AccessToken: "token123"}

	client := resty.New()
	client.SetBaseURL(srv.URL)
	client.SetTimeout(time.Second * 30)

	svc := &Service{
		sessions: source,
		resolver: resource.NewResolver(source, tokens, resource.ResolverOptions{
			BaseUrl: srv.URL,
		}),
		transfer: transfer.NewClient(),
		http:     client,
		baseUrl:  srv.URL,
	}
	return svc, srv
}

func TestGetCoursePlans(t *testing.T) {
	session := &fakeSession{
		body: `
			<div class="itsl-topic" data-topic-id="101">
				<div class="itsl-topic-title"><span>Week 43</span></div>
				<div class="itsl-topic-expander">
					<span class="itsl-topic-expanded-text">2 plans</span>
					<span class="itsl-topic-dates">from 24-10-2023 to 31-10-2023</span>
				</div>
			</div>`,
	}
	svc, _ := newTestService(t, session, nil)

	entries, err := svc.GetCoursePlans(context.Background(), "1337")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "101", entries[0].TopicID)
	require.Equal(t, 2, entries[0].PlansCount)

	// the hidden session went through the SSO hop and was released
	require.Len(t, session.navigated, 1)
	require.Contains(t, session.navigated[0], "/sso-landing")
	require.Contains(t, session.navigated[0], "Planner.aspx")
	require.True(t, session.closed)
}

func TestGetCoursePlanElements(t *testing.T) {
	session := &fakeSession{
		cookies: []cookieutil.Cookie{{Name: "ASP.NET_SessionId", Value: "abc"}},
	}
	grid := `<table>
		<tr class="gridrow">
			<td class="itsl-planner-min-title-width"><span class="itsl-plan-title-label">Merge sort</span></td>
			<td class="itsl-plan-date"><span class="itsl-inline-date-picker-view">10:15 – 12:00</span></td>
			<td><div class="itsl-planner-htmltext-viewer">-</div></td>
		</tr></table>`

	svc, _ := newTestService(t, session, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/RestApi/planner/plan/multiple/forTopic" {
			http.NotFound(w, r)
			return
		}
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "ASP.NET_SessionId=abc", r.Header.Get("cookie"))

		var req planGridRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "1337", req.CourseID)
		require.Equal(t, "101", req.TopicID)
		require.Equal(t, "Order:asc", req.Sort)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"gridData": grid})
	})

	rows, err := svc.GetCoursePlanElements(context.Background(), "1337", "101")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Merge sort", rows[0].Title)
	require.Equal(t, "", rows[0].Description)
	require.True(t, session.closed, "the cookie-harvesting session must be released")
}

func TestGetResourceFileFallsBackToLandingURL(t *testing.T) {
	session := &fakeSession{
		location: "https://resource.itslearning.com/file/55",
		body:     `<p>a resource without a download anchor</p>`,
		cookies:  []cookieutil.Cookie{{Name: "sid", Value: "xyz"}},
	}
	svc, _ := newTestService(t, session, nil)

	link, err := svc.GetResourceFile(context.Background(), resource.Reference{ElementID: "55"})
	require.NoError(t, err)
	require.Equal(t, "https://resource.itslearning.com/file/55", link.URL)
	require.Len(t, link.Cookies, 1)
	require.True(t, session.closed)
}

func TestGetBlob(t *testing.T) {
	var svc *Service
	var srv *httptest.Server
	session := &fakeSession{}
	svc, srv = newTestService(t, session, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/File/Download.aspx":
			fmt.Fprint(w, "file payload")
		default:
			http.NotFound(w, r)
		}
	})
	session.location = srv.URL + "/landing"
	session.body = `<a href="/File/Download.aspx?FileId=55">open</a>`

	blob, err := svc.GetBlob(context.Background(), resource.Reference{ElementID: "55"})
	require.NoError(t, err)
	require.Equal(t, []byte("file payload"), blob)
}
