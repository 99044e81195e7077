package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"microlab/internal/config"
	"microlab/internal/db"
	"microlab/internal/domain"
	"microlab/internal/engine"
	"microlab/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("lab-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, zap.NewNop())
	if err := e.Repo.InsertLab(context.Background(), domain.Lab{
		ID: "lab-1", Name: "Test Lab", CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("insert lab: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTestForm(t *testing.T, srv *testServer, title string) FormResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/forms", map[string]any{
		"title": title,
		"site":  "production",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create form status %d: %s", res.StatusCode, string(data))
	}
	var f FormResponse
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal form: %v", err)
	}
	return f
}

func TestReadingLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := createTestForm(t, srv, "batch 7")

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/forms/"+f.ID+"/bacteria", map[string]any{
		"bacteria": []string{"Listeria", "Salmonella"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("replace selection status %d: %s", res.StatusCode, string(data))
	}
	var selections []SelectionResponse
	if err := json.Unmarshal(data, &selections); err != nil {
		t.Fatalf("unmarshal selections: %v", err)
	}
	if len(selections) != 2 {
		t.Fatalf("selection rows = %d, want 2", len(selections))
	}

	startRes, startBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/bacteria/Listeria/start", nil, nil)
	if startRes.StatusCode != http.StatusOK {
		t.Fatalf("start reading status %d: %s", startRes.StatusCode, string(startBody))
	}
	var reading ReadingResponse
	if err := json.Unmarshal(startBody, &reading); err != nil {
		t.Fatalf("unmarshal reading: %v", err)
	}
	if !reading.Forced {
		t.Fatalf("start right after selection should be forced: %s", string(startBody))
	}
	if reading.Selection.Status != "in_progress" {
		t.Fatalf("selection status after start = %s", reading.Selection.Status)
	}

	// starting again conflicts
	again, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/bacteria/Listeria/start", nil, nil)
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("second start status %d: %s", again.StatusCode, string(againBody))
	}

	doneRes, doneBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/bacteria/Listeria/complete", nil, nil)
	if doneRes.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", doneRes.StatusCode, string(doneBody))
	}
	redoRes, redoBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/bacteria/Listeria/complete", nil, nil)
	if redoRes.StatusCode != http.StatusConflict {
		t.Fatalf("second complete status %d: %s", redoRes.StatusCode, string(redoBody))
	}
}

func TestDeleteFormCascades(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := createTestForm(t, srv, "short-lived batch")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/samples", map[string]any{
		"product": "yogurt",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sample status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/forms/"+f.ID+"/bacteria", map[string]any{
		"bacteria": []string{"Listeria"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("replace selection status %d: %s", res.StatusCode, string(data))
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/forms/"+f.ID, nil, nil)
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", delRes.StatusCode, string(delBody))
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID, nil, nil)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status %d: %s", getRes.StatusCode, string(getBody))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(getBody, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q, want not_found", envelope.Error.Code)
	}

	bactRes, bactBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/forms/"+f.ID+"/bacteria", nil, nil)
	if bactRes.StatusCode != http.StatusNotFound {
		t.Fatalf("bacteria after delete status %d: %s", bactRes.StatusCode, string(bactBody))
	}
}

func TestWaitingRoomEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	f := createTestForm(t, srv, "waiting batch")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms/"+f.ID+"/samples", map[string]any{
		"product": "yogurt",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sample status %d: %s", res.StatusCode, string(data))
	}
	var sample SampleResponse
	if err := json.Unmarshal(data, &sample); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/samples/"+sample.ID+"/to-reading", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("to-reading status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/forms/"+f.ID+"/bacteria", map[string]any{
		"bacteria": []string{"Enterobacteria"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("replace selection status %d: %s", res.StatusCode, string(data))
	}

	wrRes, wrBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/waiting-room", nil, nil)
	if wrRes.StatusCode != http.StatusOK {
		t.Fatalf("waiting room status %d: %s", wrRes.StatusCode, string(wrBody))
	}
	var forms []domain.WaitingForm
	if err := json.Unmarshal(wrBody, &forms); err != nil {
		t.Fatalf("unmarshal waiting room: %v", err)
	}
	if len(forms) != 1 || forms[0].FormID != f.ID {
		t.Fatalf("waiting room = %s", string(wrBody))
	}
	if len(forms[0].Bacteria) != 1 || forms[0].Bacteria[0].State != "waiting" {
		t.Fatalf("bacteria entries = %s", string(wrBody))
	}

	// site filter returns an empty array, never null
	fRes, fBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/waiting-room?site=packaging", nil, nil)
	if fRes.StatusCode != http.StatusOK {
		t.Fatalf("filtered waiting room status %d: %s", fRes.StatusCode, string(fBody))
	}
	var filtered []domain.WaitingForm
	if err := json.Unmarshal(fBody, &filtered); err != nil {
		t.Fatalf("unmarshal filtered: %v", err)
	}
	if filtered == nil || len(filtered) != 0 {
		t.Fatalf("filtered waiting room = %s", string(fBody))
	}
}

func TestCreateFormValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms", map[string]any{
		"site": "production",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing title status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms", map[string]any{
		"title": "batch",
		"site":  "moonbase",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown site status %d: %s", res.StatusCode, string(data))
	}

	// an explicit id missing the configured prefix is a caller mistake,
	// not a server fault
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/forms", map[string]any{
		"id":    "batch-17",
		"title": "batch",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad prefix status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("error code = %q, want bad_request", envelope.Error.Code)
	}
}
