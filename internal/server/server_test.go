package server

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
	"github.com/cwbudde/pixelsum/internal/search"
	"github.com/cwbudde/pixelsum/internal/store"
)

const tinyConfigJSON = `{"name":"tiny","scenarios":[{"name":"SAT ones","engine":"integral","pattern":"ones","width":32,"height":16}]}`

func newTestServer(t *testing.T) (*Server, *store.FSStore) {
	t.Helper()
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(":0", st, 4)
	t.Cleanup(s.cancel)
	return s, st
}

func do(s *Server, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func waitForJob(t *testing.T, jm *JobManager, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := jm.GetJob(id)
		if job.State.Done() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", id)
	return nil
}

func TestServer_CreateJob(t *testing.T) {
	s, st := newTestServer(t)

	w := do(s, http.MethodPost, "/api/v1/jobs", "application/json", strings.NewReader(tinyConfigJSON))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.ID == "" {
		t.Fatal("Job ID should not be empty")
	}
	if job.Config == nil || job.Config.Name != "tiny" {
		t.Errorf("Config should be echoed, got %+v", job.Config)
	}

	done := waitForJob(t, s.jobManager, job.ID)
	if done.State != StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", done.State, done.Error)
	}
	if _, err := st.LoadReport(job.ID); err != nil {
		t.Errorf("Report should be stored: %v", err)
	}
}

func TestServer_CreateJob_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"scenarios":`},
		{"no scenarios", `{"name":"empty"}`},
		{"bad engine", `{"scenarios":[{"engine":"quadtree","pattern":"ones","width":4,"height":4}]}`},
		{"unknown field", `{"scenarioz":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/api/v1/jobs", "application/json", strings.NewReader(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	if n := len(s.jobManager.ListJobs()); n != 0 {
		t.Errorf("No jobs should be created, got %d", n)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s, _ := newTestServer(t)
	s.jobManager.CreateJob(tinyConfig())
	s.jobManager.CreateJob(tinyConfig())

	w := do(s, http.MethodGet, "/api/v1/jobs", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}

	if w := do(s, http.MethodPut, "/api/v1/jobs", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s, _ := newTestServer(t)
	job := s.jobManager.CreateJob(tinyConfig())

	for _, path := range []string{"/api/v1/jobs/%s", "/api/v1/jobs/%s/status"} {
		w := do(s, http.MethodGet, fmt.Sprintf(path, job.ID), "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["id"] != job.ID {
			t.Error("Response should contain job ID")
		}
		if response["state"] != string(StatePending) {
			t.Errorf("Expected pending state, got %v", response["state"])
		}
		if _, ok := response["checksPerSecond"]; !ok {
			t.Error("Response should contain checksPerSecond")
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/api/v1/jobs/nonexistent", "/api/v1/jobs/nonexistent/report", "/api/v1/jobs/nonexistent/stream"} {
		if w := do(s, http.MethodGet, path, "", nil); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
	if w := do(s, http.MethodGet, "/api/v1/jobs/", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServer_GetJobReport(t *testing.T) {
	s, _ := newTestServer(t)
	job := s.jobManager.CreateJob(tinyConfig())

	w := do(s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/report", "", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for unfinished job, got %d", w.Code)
	}

	if err := runJob(s.ctx, s.jobManager, s.store, job.ID); err != nil {
		t.Fatal(err)
	}

	w = do(s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/report", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var report store.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.ID != job.ID || !report.OK() || report.Checks() != 28 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s, _ := newTestServer(t)
	job := s.jobManager.CreateJob(tinyConfig())

	if w := do(s, http.MethodDelete, "/api/v1/jobs/"+job.ID, "", nil); w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	got, _ := s.jobManager.GetJob(job.ID)
	if got.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", got.State)
	}

	if w := do(s, http.MethodDelete, "/api/v1/jobs/"+job.ID, "", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if w := do(s, http.MethodDelete, "/api/v1/jobs/nonexistent", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Reports(t *testing.T) {
	s, _ := newTestServer(t)
	job := s.jobManager.CreateJob(tinyConfig())
	if err := runJob(s.ctx, s.jobManager, s.store, job.ID); err != nil {
		t.Fatal(err)
	}

	w := do(s, http.MethodGet, "/api/v1/reports", "", nil)
	var infos []store.ReportInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != job.ID || infos[0].Checks != 28 {
		t.Errorf("Unexpected report list: %+v", infos)
	}

	if w := do(s, http.MethodGet, "/api/v1/reports/"+job.ID, "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/reports/nonexistent", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	// without a store there is nothing to list
	bare := NewServer(":0", nil, 1)
	defer bare.cancel()
	w = do(bare, http.MethodGet, "/api/v1/reports", "", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/jobs", "application/json", strings.NewReader(tinyConfigJSON))
	if err != nil {
		t.Fatal(err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	// the stream ends after the terminal event
	var last ProgressEvent
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(data), &last); err != nil {
			t.Fatalf("Bad event %q: %v", data, err)
		}
		events++
	}

	if events == 0 {
		t.Fatal("Expected SSE events")
	}
	if last.State != StateCompleted || last.Checks != 28 {
		t.Errorf("Expected completed event with 28 checks, got %+v", last)
	}
}

func TestServer_JobStream_Finished(t *testing.T) {
	s, _ := newTestServer(t)
	job := s.jobManager.CreateJob(tinyConfig())
	s.jobManager.Cancel(job.ID)

	w := do(s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", "", nil)
	if !strings.Contains(w.Body.String(), `"state":"cancelled"`) {
		t.Errorf("Expected a single cancelled event, got %q", w.Body)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Query: 10})

	select {
	case received := <-ch:
		if received.JobID != "job1" || received.Query != 10 {
			t.Errorf("Unexpected event %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}

	// late subscribers start with the last event
	late := eb.Subscribe("job1")
	if got := <-late; got.Query != 10 {
		t.Errorf("Expected replay of last event, got %+v", got)
	}
	eb.Unsubscribe("job1", late)

	eb.CleanupJob("job1")
	if _, ok := <-ch; ok {
		t.Error("Channel should be closed after cleanup")
	}
}

func TestEventBroadcaster_TerminalEventNotDropped(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	for i := 0; i < 20; i++ {
		eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Query: i})
	}
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted})

	var last ProgressEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.State != StateCompleted {
		t.Errorf("Terminal event was dropped, last is %+v", last)
	}
}

func TestServer_Buffers(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"pattern":"ones","width":32,"height":16}`
	w := do(s, http.MethodPost, "/api/v1/buffers", "application/json", strings.NewReader(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info bufferInfo
	json.NewDecoder(w.Body).Decode(&info)
	if len(info.ID) != 16 || info.Width != 32 || info.Height != 16 || info.Cached {
		t.Errorf("Unexpected buffer info %+v", info)
	}

	// same content is served from the cache
	w = do(s, http.MethodPost, "/api/v1/buffers", "application/json", strings.NewReader(body))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for cached buffer, got %d", w.Code)
	}
	if s.buffers.Len() != 1 {
		t.Errorf("Expected 1 cached buffer, got %d", s.buffers.Len())
	}

	if w := do(s, http.MethodGet, "/api/v1/buffers/"+info.ID, "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/region?x0=-10&y0=-10&x1=41&y1=25", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	var region regionResult
	json.NewDecoder(w.Body).Decode(&region)
	// 512 ones over a requested 52x36 area
	want := regionResult{X0: -10, Y0: -10, X1: 41, Y1: 25, Sum: 512, Average: 512.0 / (52 * 36), NonZeroCount: 512, NonZeroAverage: 1}
	if region != want {
		t.Errorf("Region = %+v, want %+v", region, want)
	}

	// corners at the ends of the int range still give a non-negative average
	w = do(s, http.MethodGet, fmt.Sprintf("/api/v1/buffers/%s/region?x0=%d&y0=0&x1=0&y1=0", info.ID, math.MinInt), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	region = regionResult{}
	json.NewDecoder(w.Body).Decode(&region)
	if region.Sum != 1 || region.Average <= 0 {
		t.Errorf("Extreme region = %+v, want sum 1 and a positive average", region)
	}

	if w := do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/region?x0=1", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing corners, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/region?x0=a&y0=0&x1=0&y1=0", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad corner, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/buffers/unknown/region", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/histogram", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CreateBuffer_Raw(t *testing.T) {
	s, _ := newTestServer(t)

	pix := make([]byte, 6)
	pix[4] = 9
	w := do(s, http.MethodPost, "/api/v1/buffers?width=3&height=2", "application/octet-stream", bytes.NewReader(pix))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info bufferInfo
	json.NewDecoder(w.Body).Decode(&info)

	w = do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/region?x0=0&y0=0&x1=2&y1=1", "", nil)
	var region regionResult
	json.NewDecoder(w.Body).Decode(&region)
	if region.Sum != 9 || region.NonZeroCount != 1 {
		t.Errorf("Unexpected region %+v", region)
	}

	tests := []struct {
		name   string
		target string
		body   []byte
	}{
		{"missing height", "/api/v1/buffers?width=3", pix},
		{"length mismatch", "/api/v1/buffers?width=4&height=2", pix},
		{"zero size", "/api/v1/buffers?width=0&height=0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, tt.target, "application/octet-stream", bytes.NewReader(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestServer_CreateBuffer_Image(t *testing.T) {
	s, _ := newTestServer(t)

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.Pix[5] = 200
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	w := do(s, http.MethodPost, "/api/v1/buffers", "image/png", &buf)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var info bufferInfo
	json.NewDecoder(w.Body).Decode(&info)
	if info.Width != 4 || info.Height != 4 {
		t.Errorf("Unexpected size %dx%d", info.Width, info.Height)
	}

	if w := do(s, http.MethodPost, "/api/v1/buffers", "image/png", strings.NewReader("not a png")); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestServer_CreateBuffer_ImageTooLarge sends a tiny PNG whose header claims
// 5000x5000 pixels; it is rejected from the header alone
func TestServer_CreateBuffer_ImageTooLarge(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	// IHDR: length at 8, type at 12, width and height at 16 and 20, CRC at 29
	binary.BigEndian.PutUint32(data[16:], 5000)
	binary.BigEndian.PutUint32(data[20:], 5000)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))

	w := do(s, http.MethodPost, "/api/v1/buffers", "image/png", bytes.NewReader(data))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d: %s", w.Code, w.Body)
	}
	if s.buffers.Len() != 0 {
		t.Errorf("Expected no cached buffers, got %d", s.buffers.Len())
	}

	raw := bytes.NewReader(make([]byte, pixelsum.MaxPixels+1))
	w = do(s, http.MethodPost, "/api/v1/buffers?width=4097&height=4096", "application/octet-stream", raw)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413 for raw upload, got %d", w.Code)
	}
}

func TestServer_Locate(t *testing.T) {
	s, _ := newTestServer(t)

	pix := make([]byte, 64*32)
	pix[20*64+40] = 255
	w := do(s, http.MethodPost, "/api/v1/buffers?width=64&height=32", "application/octet-stream", bytes.NewReader(pix))
	var info bufferInfo
	json.NewDecoder(w.Body).Decode(&info)

	for _, query := range []string{"w=3&h=3&objective=density&exhaustive=true", "w=3&h=3&objective=density"} {
		w = do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/locate?"+query, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
		}
		var win search.Window
		json.NewDecoder(w.Body).Decode(&win)
		// the first window in row-major order that covers (40, 20)
		if win.X != 38 || win.Y != 18 || win.Score != 1 {
			t.Errorf("%s: unexpected window %+v", query, win)
		}
	}

	for _, query := range []string{"w=3", "w=3&h=3&objective=median", "w=100&h=3", "w=3&h=3&iters=x"} {
		if w := do(s, http.MethodGet, "/api/v1/buffers/"+info.ID+"/locate?"+query, "", nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", query, w.Code)
		}
	}
}

func TestServer_Kernel(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/api/v1/kernel", "", nil)
	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response["backend"] != kernel.Active().Backend.String() {
		t.Errorf("Unexpected backend %v", response["backend"])
	}
	if response["lanes"].(float64) < 1 {
		t.Errorf("Unexpected lanes %v", response["lanes"])
	}
}

func TestServer_CORS(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodOptions, "/api/v1/jobs", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
