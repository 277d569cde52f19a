package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/script"
)

func testJob() *Job {
	return &Job{
		RunID:   "run-1",
		Script:  &script.Script{ID: "s1", Name: "hello", Code: "console.log('hi')"},
		ReqBody: json.RawMessage(`{"key":"value"}`),
	}
}

func testCreds() Credentials {
	return Credentials{RunnerID: "host-1", RunnerName: "box", Secret: "s3cret"}
}

func newTestClient() *Client {
	return NewClient(zap.NewNop().Sugar())
}

// streamHandler writes NDJSON lines with explicit flushes so the client
// observes them as a live stream.
func streamHandler(t *testing.T, lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "host-1", r.Header.Get(HeaderRunnerID))
		assert.Equal(t, "s3cret", r.Header.Get(HeaderRunnerSecret))

		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}
}

func TestSendLogsThenResult(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		`{"type":"log","line":"starting"}`,
		`{"type":"log","line":"working"}`,
		`{"type":"result","data":{"stdout":"done","stderr":"","code":0,"duration":12}}`,
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	var logs []string
	for line := range ex.Logs {
		logs = append(logs, line)
	}
	assert.Equal(t, []string{"starting", "working"}, logs)

	result, err := ex.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "done", result.Stdout)
	assert.Equal(t, float64(0), result.Code)
}

func TestSendResultWithoutTrailingNewline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Final line held as a trailing partial until stream end.
		fmt.Fprint(w, `{"type":"result","data":{"stdout":"x","stderr":"","code":0}}`)
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	result, err := ex.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", result.Stdout)
}

func TestSendStreamEndsWithoutResult(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		`{"type":"log","line":"partial output"}`,
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)
	for range ex.Logs {
	}

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a result message")
}

func TestSendMalformedLineIsProtocolViolation(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		`{"type":"log","line":"fine"}`,
		`this is not json`,
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)
	for range ex.Logs {
	}

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed stream line")
	// The raw payload rides along as a detail for operator diagnostics.
	assert.Contains(t, errors.GetAllDetails(err), "this is not json")
}

func TestSendHTTPErrorShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "runner busy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "runner busy")
}

func TestSendUnreachableRunnerIsUnavailable(t *testing.T) {
	ex, err := newTestClient().Send(context.Background(), "http://127.0.0.1:1", testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	assert.True(t, errors.IsRunnerUnavailableError(err))
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"log","line":"hanging"}`)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 100*time.Millisecond)
	require.NoError(t, err)
	for range ex.Logs {
	}

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestAbortSettlesWithReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"log","line":"running"}`)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	// Wait for the stream to be live before aborting.
	<-ex.Logs
	ex.Abort("runner disabled mid-flight")
	for range ex.Logs {
	}

	result, err := ex.Wait(context.Background())
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch aborted: runner disabled mid-flight")

	// Idempotent: a second abort with a different reason changes nothing.
	ex.Abort("other reason")
	_, err2 := ex.Wait(context.Background())
	assert.Equal(t, err.Error(), err2.Error())
}

func TestUnrecognizedMessageKindsFlowToEvents(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{
		`{"type":"progress","percent":50}`,
		`{"type":"result","data":{"stdout":"","stderr":"","code":0}}`,
	}))
	defer srv.Close()

	ex, err := newTestClient().Send(context.Background(), srv.URL, testCreds(), testJob(), 5*time.Second)
	require.NoError(t, err)

	var events []json.RawMessage
	for ev := range ex.Events {
		events = append(events, ev)
	}
	_, err = ex.Wait(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Contains(t, string(events[0]), "progress")
}
