package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"itsdu-backend/lib/cookieutil"
	"itsdu-backend/lib/scrapers/itslearning/planner"
	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/transfer"

	"github.com/stretchr/testify/require"
)

type stubApi struct {
	link     resource.ResolvedLink
	mediaURL string
	plans    []planner.CoursePlanEntry
	rows     []planner.PlanGridRow
	err      error

	gotElementID string
	gotCourseID  string
	gotTopicID   string
}

func (s *stubApi) GetSSOURL(ctx context.Context, target string) (string, error) {
	return "https://sso.example.com/hop?wrapped=" + target, s.err
}

func (s *stubApi) GetResourceFile(ctx context.Context, ref resource.Reference) (resource.ResolvedLink, error) {
	s.gotElementID = ref.ElementID
	return s.link, s.err
}

func (s *stubApi) GetBlob(ctx context.Context, ref resource.Reference) ([]byte, error) {
	return []byte("blob"), s.err
}

func (s *stubApi) GetMediaURL(ctx context.Context, ref resource.Reference) (string, error) {
	s.gotElementID = ref.ElementID
	return s.mediaURL, s.err
}

func (s *stubApi) GetOfficeDocument(ctx context.Context, ref resource.Reference) (resource.OfficeDocument, error) {
	return resource.OfficeDocument{DownloadURL: "https://files.example.com/doc.docx", AccessToken: "tok"}, s.err
}

func (s *stubApi) StreamResource(ctx context.Context, ref resource.Reference, dst io.Writer, onProgress func(transfer.Progress)) error {
	if s.err != nil {
		return s.err
	}
	fmt.Fprint(dst, "streamed bytes")
	return nil
}

func (s *stubApi) GetCoursePlans(ctx context.Context, courseID string) ([]planner.CoursePlanEntry, error) {
	s.gotCourseID = courseID
	return s.plans, s.err
}

func (s *stubApi) GetCoursePlanElements(ctx context.Context, courseID, topicID string) ([]planner.PlanGridRow, error) {
	s.gotCourseID = courseID
	s.gotTopicID = topicID
	return s.rows, s.err
}

func newTestServer(t *testing.T, api Api) *httptest.Server {
	mux := http.NewServeMux()
	Mount(mux, api)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResourceFile(t *testing.T) {
	api := &stubApi{
		link: resource.ResolvedLink{
			URL:     "https://resource.itslearning.com/file/9",
			Cookies: []cookieutil.Cookie{{Name: "sid", Value: "abc"}},
		},
	}
	srv := newTestServer(t, api)

	res, err := http.Get(srv.URL + "/api/resources/9/file")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "9", api.gotElementID)

	var link resource.ResolvedLink
	require.NoError(t, json.NewDecoder(res.Body).Decode(&link))
	require.Equal(t, api.link, link)
}

func TestResourceMedia(t *testing.T) {
	api := &stubApi{mediaURL: "https://cdn.example.com/video.mp4"}
	srv := newTestServer(t, api)

	res, err := http.Get(srv.URL + "/api/resources/42/media")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "https://cdn.example.com/video.mp4", body["url"])
}

func TestResourceStream(t *testing.T) {
	srv := newTestServer(t, &stubApi{})

	res, err := http.Get(srv.URL + "/api/resources/42/stream")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "streamed bytes", string(body))
}

func TestCoursePlanElementsRouting(t *testing.T) {
	api := &stubApi{rows: []planner.PlanGridRow{{Title: "Merge sort"}}}
	srv := newTestServer(t, api)

	res, err := http.Get(srv.URL + "/api/courses/1337/topics/101/elements")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "1337", api.gotCourseID)
	require.Equal(t, "101", api.gotTopicID)
}

func TestErrorTaxonomyMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: denied", resource.ErrAuthLink), http.StatusUnauthorized},
		{fmt.Errorf("%w: gone", resource.ErrUnresolvableResource), http.StatusNotFound},
		{fmt.Errorf("%w: no source", resource.ErrMediaNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: cut", transfer.ErrTransferFailed), http.StatusBadGateway},
		{fmt.Errorf("plain failure"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		srv := newTestServer(t, &stubApi{err: c.err})
		res, err := http.Get(srv.URL + "/api/resources/1/media")
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, c.want, res.StatusCode, "err %v", c.err)
	}
}

func TestSSOURLRequiresTarget(t *testing.T) {
	srv := newTestServer(t, &stubApi{})

	res, err := http.Get(srv.URL + "/api/sso-url")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}
