package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/config"
	internaltesting "github.com/AutomNexus/Automn-sub001/internal/testing"
	"github.com/AutomNexus/Automn-sub001/run/tracker"
	"github.com/AutomNexus/Automn-sub001/runner/dispatch"
	"github.com/AutomNexus/Automn-sub001/runner/protocol"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
	"github.com/AutomNexus/Automn-sub001/script"
)

type apiFixture struct {
	server   *httptest.Server
	registry *registry.Registry
	scripts  *script.Store
	tracker  *tracker.Tracker
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	database := internaltesting.CreateTestDB(t)
	log := zap.NewNop().Sugar()

	reg := registry.New(registry.NewStore(database), config.RunnerConfig{
		HealthWindowSeconds:    120,
		StalenessWindowSeconds: 300,
		RegisterBurst:          100,
		RegisterPerMinute:      600,
	}, "1.4.0", log)
	scripts := script.NewStore(database)
	trk := tracker.New(tracker.NewStore(database), scripts, log)
	disp := dispatch.New(reg, scripts, trk, protocol.NewClient(log), config.DispatchConfig{
		MaxInFlight:         8,
		DefaultJobTimeoutMs: 5000,
	}, log)

	srv := New(database, config.ServerConfig{AllowedOrigins: []string{"https://ops.example.com"}}, reg, disp, trk, scripts, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &apiFixture{server: ts, registry: reg, scripts: scripts, tracker: trk}
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func fakeRunnerServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"type":"log","line":"working"}`)
		fmt.Fprintln(w, `{"type":"result","data":{"stdout":"done","stderr":"","code":0,"duration":3}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvisionAndRegisterOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/runners", map[string]string{"name": "worker-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	secret, _ := body["secret"].(string)
	require.NotEmpty(t, secret)
	runner := body["runner"].(map[string]interface{})
	hostID := runner["id"].(string)
	assert.Equal(t, "pending", runner["status"])
	// The hash never appears on the wire.
	assert.NotContains(t, runner, "SecretHash")
	assert.NotContains(t, runner, "secretHash")

	resp = f.post(t, "/api/runners/"+hostID+"/register", map[string]interface{}{
		"secret":         secret,
		"endpoint":       "http://runner.local:9301/execute",
		"maxConcurrency": 4,
		"version":        "1.4.0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "1.4.0", body["hostVersion"])
	registered := body["runner"].(map[string]interface{})
	assert.Equal(t, "healthy", registered["status"])
}

func TestRegisterAuthFailuresAreIndistinguishable(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/api/runners", map[string]string{"name": "worker-1"})
	body := decodeBody(t, resp)
	hostID := body["runner"].(map[string]interface{})["id"].(string)

	readAuthFailure := func(path string) map[string]interface{} {
		resp := f.post(t, path, map[string]interface{}{
			"secret": "wrong", "endpoint": "http://x", "maxConcurrency": 1,
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		return decodeBody(t, resp)
	}

	wrongSecret := readAuthFailure("/api/runners/" + hostID + "/register")
	unknownHost := readAuthFailure("/api/runners/no-such-host/register")
	assert.Equal(t, wrongSecret, unknownHost)
	assert.Equal(t, "unauthorized", wrongSecret["error"])
}

func TestDisabledRunnerRegisterReturns403(t *testing.T) {
	f := newAPIFixture(t)

	host, secret, err := f.registry.Provision("worker-1", "http://x", false)
	require.NoError(t, err)

	resp := f.post(t, "/api/runners/"+host.ID+"/disable", map[string]string{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.post(t, "/api/runners/"+host.ID+"/register", map[string]interface{}{
		"secret": secret, "endpoint": "http://x", "maxConcurrency": 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestScriptRunWithoutRunnerIs503(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.scripts.Create(&script.Script{ID: "s1", Name: "hello"}))
	require.NoError(t, f.scripts.AddVersion("s1", 1, "x"))

	resp := f.post(t, "/api/scripts/s1/run?mode=sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "no runner configured")
}

func TestScriptRunSyncEndToEnd(t *testing.T) {
	runner := fakeRunnerServer(t)
	f := newAPIFixture(t)

	host, secret, err := f.registry.Provision("worker-1", "", false)
	require.NoError(t, err)
	_, err = f.registry.Register(registry.RegisterRequest{
		HostID: host.ID, Secret: secret, Endpoint: runner.URL, MaxConcurrency: 4,
	})
	require.NoError(t, err)

	require.NoError(t, f.scripts.Create(&script.Script{ID: "s1", Name: "hello", RunnerHostID: host.ID}))
	require.NoError(t, f.scripts.AddVersion("s1", 1, "x"))

	resp := f.post(t, "/api/scripts/s1/run?mode=sync", map[string]string{"city": "Reykjavik"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	run := body["run"].(map[string]interface{})
	assert.Equal(t, "success", run["status"])
	log := body["log"].(map[string]interface{})
	assert.Equal(t, "done", log["stdout"])

	// The run and its log stay retrievable afterwards.
	runID := run["id"].(string)
	resp = f.get(t, "/api/runs/"+runID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = f.get(t, "/api/runs/"+runID+"/log")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.get(t, "/api/scripts/s1/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Len(t, body["runs"], 1)
}

func TestScriptRunQueuedReturns202(t *testing.T) {
	runner := fakeRunnerServer(t)
	f := newAPIFixture(t)

	host, secret, err := f.registry.Provision("worker-1", "", false)
	require.NoError(t, err)
	_, err = f.registry.Register(registry.RegisterRequest{
		HostID: host.ID, Secret: secret, Endpoint: runner.URL, MaxConcurrency: 4,
	})
	require.NoError(t, err)
	require.NoError(t, f.scripts.Create(&script.Script{ID: "s1", Name: "hello", RunnerHostID: host.ID}))
	require.NoError(t, f.scripts.AddVersion("s1", 1, "x"))

	resp := f.post(t, "/api/scripts/s1/run", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "accepted", body["status"])
	runID := body["runId"].(string)

	require.Eventually(t, func() bool {
		run, err := f.tracker.Get(runID)
		return err == nil && run.Status == tracker.RunStatusSuccess
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunLookupNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/runs/no-such-run")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = f.get(t, "/api/runs/no-such-run/log")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = f.post(t, "/api/scripts/no-such-script/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["runnersAvailable"])

	host, secret, err := f.registry.Provision("worker-1", "", false)
	require.NoError(t, err)
	_, err = f.registry.Register(registry.RegisterRequest{
		HostID: host.ID, Secret: secret, Endpoint: "http://x", MaxConcurrency: 1,
	})
	require.NoError(t, err)

	body = decodeBody(t, f.get(t, "/health"))
	assert.Equal(t, true, body["runnersAvailable"])
}

func TestCORSHeadersForAllowedOrigin(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://ops.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketReceivesRunSettlement(t *testing.T) {
	runner := fakeRunnerServer(t)
	f := newAPIFixture(t)

	host, secret, err := f.registry.Provision("worker-1", "", false)
	require.NoError(t, err)
	_, err = f.registry.Register(registry.RegisterRequest{
		HostID: host.ID, Secret: secret, Endpoint: runner.URL, MaxConcurrency: 4,
	})
	require.NoError(t, err)
	require.NoError(t, f.scripts.Create(&script.Script{ID: "s1", Name: "hello", RunnerHostID: host.ID}))
	require.NoError(t, f.scripts.AddVersion("s1", 1, "x"))

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := f.post(t, "/api/scripts/s1/run", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawLog, sawSettled := false, false
	for !sawLog || !sawSettled {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg["type"] {
		case "run_log":
			assert.Equal(t, "working", msg["line"])
			sawLog = true
		case "run_settled":
			run := msg["run"].(map[string]interface{})
			assert.Equal(t, "success", run["status"])
			sawSettled = true
		}
	}
}
