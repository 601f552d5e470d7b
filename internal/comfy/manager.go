// Package comfy talks to a local ComfyUI instance: it submits prompt graphs,
// maps ComfyUI's queue/history endpoints onto job statuses, and fetches
// finished images as base64.
package comfy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"genbridge/pkg/types"
)

// ErrNotConnected is returned when no ComfyUI instance has been probed yet.
var ErrNotConnected = errors.New("not connected to ComfyUI")

// ErrUnknownJob is returned for job ids the manager never issued.
var ErrUnknownJob = errors.New("unknown job")

// ErrNotFinished is returned when images are requested before the job is done.
var ErrNotFinished = errors.New("job not finished")

type job struct {
	promptID string
	seed     int64
	status   types.JobStatus
	errMsg   string
	progress float64
	images   []string
	seeds    []int64
}

// Manager owns the connection to one ComfyUI instance and the registry of
// jobs submitted through it. Status is resolved lazily: each JobStatus call
// consults ComfyUI's queue and history rather than a background poller.
// Per-step sampling progress arrives over ComfyUI's websocket event stream,
// which a listener goroutine feeds into the job registry.
type Manager struct {
	hc       *http.Client
	log      zerolog.Logger
	clientID string

	mu        sync.Mutex
	baseURL   string
	connected bool
	device    string
	wsCancel  context.CancelFunc
	jobs      map[string]*job
	seq       int
}

// NewManager creates a disconnected manager. Connect must succeed before
// jobs can be submitted.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		hc:       &http.Client{Timeout: 60 * time.Second},
		log:      log,
		clientID: fmt.Sprintf("genbridge-%016x", rand.Int63()),
		jobs:     map[string]*job{},
	}
}

// Connect probes the instance's system stats endpoint and, on success,
// records the URL for all later calls.
func (m *Manager) Connect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ComfyUI url %q", rawURL)
	}
	var stats struct {
		Devices []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"devices"`
	}
	if err := m.getJSON(ctx, rawURL+"/system_stats", &stats); err != nil {
		return fmt.Errorf("probe %s: %w", rawURL, err)
	}
	device := "unknown"
	if len(stats.Devices) > 0 {
		device = stats.Devices[0].Name
	}
	m.mu.Lock()
	if m.wsCancel != nil {
		m.wsCancel()
	}
	wsCtx, cancel := context.WithCancel(context.Background())
	m.wsCancel = cancel
	m.baseURL = rawURL
	m.connected = true
	m.device = device
	m.mu.Unlock()

	wsURL := strings.Replace(rawURL, "http", "ws", 1) + "/ws?clientId=" + m.clientID
	go m.listenProgress(wsCtx, wsURL)
	m.log.Info().Str("url", rawURL).Str("device", device).Msg("connected to ComfyUI")
	return nil
}

// Close drops the connection state and stops the progress listener.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.wsCancel != nil {
		m.wsCancel()
		m.wsCancel = nil
	}
	m.connected = false
	m.mu.Unlock()
}

// Status reports whether a backend is connected and where.
func (m *Manager) Status() types.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.ConnectionStatus{Backend: "comfy", ComfyURL: m.baseURL, Connected: m.connected}
	if m.connected {
		st.Status = "connected"
	} else {
		st.Status = "disconnected"
	}
	return st
}

// Generate builds a workflow from the request and enqueues it. The returned
// id is the manager's own; ComfyUI's prompt id stays internal.
func (m *Manager) Generate(ctx context.Context, req *types.GenerateRequest) (string, error) {
	seed := req.Seed
	if seed < 0 {
		seed = rand.Int63()
	}
	return m.submit(ctx, BuildWorkflow(req, seed), seed)
}

// Upscale enqueues a model upscale, optionally followed by a tiled refine
// pass over the upscaled pixels.
func (m *Manager) Upscale(ctx context.Context, req *types.UpscaleRequest) (string, error) {
	seed := req.Seed
	if seed <= 0 {
		seed = rand.Int63()
	}
	return m.submit(ctx, BuildUpscaleWorkflow(req, seed), seed)
}

// Custom enqueues a caller-provided workflow graph verbatim.
func (m *Manager) Custom(ctx context.Context, workflow map[string]any) (string, error) {
	return m.submitRaw(ctx, workflow, rand.Int63())
}

func (m *Manager) submit(ctx context.Context, wf map[string]node, seed int64) (string, error) {
	raw := make(map[string]any, len(wf))
	for id, n := range wf {
		raw[id] = n
	}
	return m.submitRaw(ctx, raw, seed)
}

func (m *Manager) submitRaw(ctx context.Context, wf map[string]any, seed int64) (string, error) {
	base, err := m.base()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]any{"prompt": wf, "client_id": m.clientID})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := m.hc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("enqueue prompt: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("job-%d", m.seq)
	m.jobs[id] = &job{promptID: out.PromptID, seed: seed, status: types.JobQueued}
	m.mu.Unlock()
	m.log.Info().Str("job_id", id).Str("prompt_id", out.PromptID).Msg("prompt enqueued")
	return id, nil
}

// JobStatus resolves the job's current state against ComfyUI's queue and
// history. Terminal results are cached; further calls do not hit the backend.
func (m *Manager) JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	if j.status.Terminal() {
		return m.statusResponse(jobID, j), nil
	}

	base, err := m.base()
	if err != nil {
		return nil, err
	}

	running, pending, err := m.queueState(ctx, base)
	if err != nil {
		return nil, err
	}
	if pending[j.promptID] {
		m.setStatus(j, types.JobQueued, "")
		return m.statusResponse(jobID, j), nil
	}
	if running[j.promptID] {
		m.setStatus(j, types.JobExecuting, "")
		return m.statusResponse(jobID, j), nil
	}

	// Not queued anymore: the history record decides between finished,
	// interrupted and error.
	entry, ok, err := m.historyEntry(ctx, base, j.promptID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Gone from the queue with no history yet; ComfyUI writes the
		// record moments after execution ends.
		m.setStatus(j, types.JobExecuting, "")
		return m.statusResponse(jobID, j), nil
	}
	switch {
	case entry.interrupted:
		m.setStatus(j, types.JobInterrupted, "")
	case entry.errMsg != "":
		m.setStatus(j, types.JobError, entry.errMsg)
	default:
		images, err := m.fetchImages(ctx, base, entry.outputs)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		j.images = images
		j.seeds = make([]int64, len(images))
		for i := range images {
			j.seeds[i] = j.seed + int64(i)
		}
		j.status = types.JobFinished
		m.mu.Unlock()
	}
	return m.statusResponse(jobID, j), nil
}

// JobImages returns a finished job's images and the per-image seeds.
func (m *Manager) JobImages(ctx context.Context, jobID string) (*types.JobImagesResponse, error) {
	if _, err := m.JobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	if j.status != types.JobFinished {
		return nil, ErrNotFinished
	}
	return &types.JobImagesResponse{JobID: jobID, Images: j.images, Seeds: j.seeds}, nil
}

// Cancel interrupts a running job or deletes it from the pending queue.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	if j.status.Terminal() {
		return nil
	}
	base, err := m.base()
	if err != nil {
		return err
	}
	running, pending, err := m.queueState(ctx, base)
	if err != nil {
		return err
	}
	switch {
	case running[j.promptID]:
		if err := m.postJSON(ctx, base+"/interrupt", nil); err != nil {
			return err
		}
	case pending[j.promptID]:
		if err := m.postJSON(ctx, base+"/queue", map[string]any{"delete": []string{j.promptID}}); err != nil {
			return err
		}
	}
	m.setStatus(j, types.JobInterrupted, "")
	m.log.Info().Str("job_id", jobID).Msg("job cancelled")
	return nil
}

func (m *Manager) base() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", ErrNotConnected
	}
	return m.baseURL, nil
}

func (m *Manager) setStatus(j *job, st types.JobStatus, errMsg string) {
	m.mu.Lock()
	j.status = st
	j.errMsg = errMsg
	m.mu.Unlock()
}

func (m *Manager) statusResponse(jobID string, j *job) *types.JobStatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := &types.JobStatusResponse{
		JobID:      jobID,
		Status:     j.status,
		Error:      j.errMsg,
		ImageCount: len(j.images),
	}
	switch j.status {
	case types.JobExecuting:
		resp.Progress = j.progress
	case types.JobFinished:
		resp.Progress = 1
	}
	return resp
}

// listenProgress keeps one socket open to ComfyUI's event stream and
// reconnects until the context is cancelled by a later Connect or Close.
func (m *Manager) listenProgress(ctx context.Context, wsURL string) {
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			m.log.Warn().Str("url", wsURL).Err(err).Msg("progress socket dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		m.readProgress(ctx, conn)
		conn.Close()
	}
}

func (m *Manager) readProgress(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn().Err(err).Msg("progress socket closed")
			}
			return
		}
		// Binary frames carry live preview images; only the JSON progress
		// events matter here.
		if typ != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
			Data struct {
				Value    float64 `json:"value"`
				Max      float64 `json:"max"`
				PromptID string  `json:"prompt_id"`
			} `json:"data"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.Type != "progress" || msg.Data.Max <= 0 {
			continue
		}
		m.setProgress(msg.Data.PromptID, msg.Data.Value/msg.Data.Max)
	}
}

// setProgress records the sampling fraction for the job owning promptID.
func (m *Manager) setProgress(promptID string, frac float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.promptID == promptID && !j.status.Terminal() {
			j.progress = frac
		}
	}
}

// queueState returns the prompt ids currently running and pending.
func (m *Manager) queueState(ctx context.Context, base string) (running, pending map[string]bool, err error) {
	var q struct {
		Running [][]json.RawMessage `json:"queue_running"`
		Pending [][]json.RawMessage `json:"queue_pending"`
	}
	if err := m.getJSON(ctx, base+"/queue", &q); err != nil {
		return nil, nil, err
	}
	return promptIDs(q.Running), promptIDs(q.Pending), nil
}

// Queue entries are positional arrays; index 1 is the prompt id.
func promptIDs(entries [][]json.RawMessage) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		if len(e) < 2 {
			continue
		}
		var id string
		if json.Unmarshal(e[1], &id) == nil {
			ids[id] = true
		}
	}
	return ids
}

type historyOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyRecord struct {
	interrupted bool
	errMsg      string
	outputs     []historyOutput
}

func (m *Manager) historyEntry(ctx context.Context, base, promptID string) (historyRecord, bool, error) {
	var raw map[string]struct {
		Status struct {
			StatusStr string            `json:"status_str"`
			Messages  []json.RawMessage `json:"messages"`
		} `json:"status"`
		Outputs map[string]struct {
			Images []historyOutput `json:"images"`
		} `json:"outputs"`
	}
	if err := m.getJSON(ctx, base+"/history/"+promptID, &raw); err != nil {
		return historyRecord{}, false, err
	}
	entry, ok := raw[promptID]
	if !ok {
		return historyRecord{}, false, nil
	}
	var rec historyRecord
	for _, out := range entry.Outputs {
		rec.outputs = append(rec.outputs, out.Images...)
	}
	switch entry.Status.StatusStr {
	case "error":
		rec.errMsg = historyErrorMessage(entry.Status.Messages)
	default:
		if len(rec.outputs) == 0 && interruptedMessage(entry.Status.Messages) {
			rec.interrupted = true
		}
	}
	return rec, true, nil
}

// Status messages are ["name", {payload}] pairs.
func historyErrorMessage(messages []json.RawMessage) string {
	for _, raw := range messages {
		var pair []json.RawMessage
		if json.Unmarshal(raw, &pair) != nil || len(pair) < 2 {
			continue
		}
		var name string
		if json.Unmarshal(pair[0], &name) != nil || name != "execution_error" {
			continue
		}
		var payload struct {
			ExceptionMessage string `json:"exception_message"`
		}
		if json.Unmarshal(pair[1], &payload) == nil && payload.ExceptionMessage != "" {
			return payload.ExceptionMessage
		}
	}
	return "execution failed"
}

func interruptedMessage(messages []json.RawMessage) bool {
	for _, raw := range messages {
		var pair []json.RawMessage
		if json.Unmarshal(raw, &pair) != nil || len(pair) < 1 {
			continue
		}
		var name string
		if json.Unmarshal(pair[0], &name) == nil && name == "execution_interrupted" {
			return true
		}
	}
	return false
}

func (m *Manager) fetchImages(ctx context.Context, base string, outputs []historyOutput) ([]string, error) {
	images := make([]string, 0, len(outputs))
	for _, out := range outputs {
		q := url.Values{}
		q.Set("filename", out.Filename)
		q.Set("subfolder", out.Subfolder)
		q.Set("type", out.Type)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/view?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := m.hc.Do(httpReq)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch image %s: status %d", out.Filename, resp.StatusCode)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}

func (m *Manager) getJSON(ctx context.Context, rawURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m *Manager) postJSON(ctx context.Context, rawURL string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := m.hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d", rawURL, resp.StatusCode)
	}
	return nil
}
