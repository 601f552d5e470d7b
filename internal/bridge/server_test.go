package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"genbridge/internal/comfy"
	"genbridge/pkg/types"
)

// fakeService scripts the Service interface for handler tests.
type fakeService struct {
	connected   bool
	generateErr error
	statusErr   error
	noImages    bool
	cancelled   []string
	lastReq     *types.GenerateRequest
	status      *types.JobStatusResponse
	styles      []types.StyleSummary
}

func (f *fakeService) Connection() types.ConnectionStatus {
	return types.ConnectionStatus{Backend: "comfy", Connected: f.connected}
}

func (f *fakeService) Connect(_ context.Context, req types.ConnectionRequest) (types.ConnectionStatus, error) {
	f.connected = true
	return types.ConnectionStatus{Backend: "comfy", ComfyURL: req.ComfyURL, Connected: true, Status: "connected"}, nil
}

func (f *fakeService) Generate(_ context.Context, req *types.GenerateRequest) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	f.lastReq = req
	return "job-1", nil
}

func (f *fakeService) Upscale(context.Context, *types.UpscaleRequest) (string, error) {
	return "job-2", nil
}

func (f *fakeService) Custom(context.Context, map[string]any) (string, error) {
	return "job-3", nil
}

func (f *fakeService) JobStatus(_ context.Context, jobID string) (*types.JobStatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := *f.status
	st.JobID = jobID
	return &st, nil
}

func (f *fakeService) JobImages(_ context.Context, jobID string) (*types.JobImagesResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.noImages {
		return &types.JobImagesResponse{JobID: jobID}, nil
	}
	return &types.JobImagesResponse{JobID: jobID, Images: []string{"aW1n"}, Seeds: []int64{9}}, nil
}

func (f *fakeService) Cancel(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeService) Styles() []types.StyleSummary { return f.styles }

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewMux(svc, MuxOptions{Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGenerateEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/generate", types.GenerateRequest{
		Prompt: "a cat", Width: 512, Height: 512, BatchSize: 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[types.GenerateResponse](t, resp)
	require.Equal(t, "job-1", out.JobID)
	require.Equal(t, types.JobQueued, out.Status)
	require.Equal(t, "a cat", svc.lastReq.Prompt)
}

func TestGenerateValidation(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp := postJSON(t, srv.URL+"/api/generate", types.GenerateRequest{Prompt: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeBody[types.ErrorResponse](t, resp)
	require.Equal(t, "width and height must be positive", out.Error)

	resp = postJSON(t, srv.URL+"/api/generate", types.GenerateRequest{
		Prompt: "x", Width: 512, Height: 512, Mask: "bWFzaw==",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out = decodeBody[types.ErrorResponse](t, resp)
	require.Equal(t, "inpaint requires a base image", out.Error)
}

func TestGenerateRequiresJSONContentType(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	resp, err := http.Post(srv.URL+"/api/generate", "text/plain", bytes.NewBufferString("hi"))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	resp.Body.Close()
}

func TestNotConnectedMapsTo503(t *testing.T) {
	srv := newTestServer(t, &fakeService{generateErr: comfy.ErrNotConnected})
	resp := postJSON(t, srv.URL+"/api/generate", types.GenerateRequest{
		Prompt: "x", Width: 512, Height: 512,
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	out := decodeBody[types.ErrorResponse](t, resp)
	require.Equal(t, "not connected to ComfyUI", out.Error)
}

func TestUnknownJobMapsTo404(t *testing.T) {
	srv := newTestServer(t, &fakeService{statusErr: comfy.ErrUnknownJob})
	resp, err := http.Get(srv.URL + "/api/jobs/job-404")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestNotFinishedMapsTo400(t *testing.T) {
	srv := newTestServer(t, &fakeService{statusErr: comfy.ErrNotFinished})
	resp, err := http.Get(srv.URL + "/api/jobs/job-1/images")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestZeroImagesMapsTo404(t *testing.T) {
	srv := newTestServer(t, &fakeService{noImages: true})
	resp, err := http.Get(srv.URL + "/api/jobs/job-1/images")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decodeBody[types.ErrorResponse](t, resp)
	require.Equal(t, "no images generated", out.Error)
}

func TestJobStatusAndImages(t *testing.T) {
	svc := &fakeService{status: &types.JobStatusResponse{Status: types.JobFinished, Progress: 1, ImageCount: 1}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/jobs/job-1")
	require.NoError(t, err)
	st := decodeBody[types.JobStatusResponse](t, resp)
	require.Equal(t, "job-1", st.JobID)
	require.Equal(t, types.JobFinished, st.Status)

	resp, err = http.Get(srv.URL + "/api/jobs/job-1/images")
	require.NoError(t, err)
	images := decodeBody[types.JobImagesResponse](t, resp)
	require.Equal(t, []int64{9}, images.Seeds)
}

func TestCancelEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)
	resp := postJSON(t, srv.URL+"/api/jobs/job-7/cancel", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, []string{"job-7"}, svc.cancelled)
}

func TestConnectionEndpoints(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/connection")
	require.NoError(t, err)
	st := decodeBody[types.ConnectionStatus](t, resp)
	require.False(t, st.Connected)

	resp = postJSON(t, srv.URL+"/api/connection", types.ConnectionRequest{
		Backend: "comfy", ComfyURL: "http://localhost:8188",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[types.ConnectionStatus](t, resp)
	require.True(t, st.Connected)
	require.Equal(t, "http://localhost:8188", st.ComfyURL)
}

func TestStylesEndpoint(t *testing.T) {
	svc := &fakeService{styles: []types.StyleSummary{{ID: "built-in/cinematic.json", Name: "Cinematic"}}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/styles")
	require.NoError(t, err)
	out := decodeBody[types.StylesResponse](t, resp)
	require.Len(t, out.Styles, 1)
	require.Equal(t, "Cinematic", out.Styles[0].Name)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	for _, path := range []string{"/api/health", "/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}
