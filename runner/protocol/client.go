package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AutomNexus/Automn-sub001/errors"
)

// maxErrorBodyBytes bounds how much of a non-2xx response body is kept for
// the error message.
const maxErrorBodyBytes = 4 * 1024

// Client dispatches jobs to runner hosts over the streaming protocol.
type Client struct {
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a protocol client. Per-job deadlines are armed per
// exchange, so the underlying http.Client carries no global timeout.
func NewClient(logger *zap.SugaredLogger) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger,
	}
}

// Exchange is one in-flight dispatch. Log lines arrive on Logs in emission
// order; unrecognized stream messages arrive on Events. The exchange
// settles exactly once: Wait returns the terminal result or error, and any
// late network event after a timeout or abort is discarded.
type Exchange struct {
	// Logs carries live log lines. Closed when the exchange settles.
	Logs <-chan string
	// Events carries well-formed but unrecognized stream payloads.
	Events <-chan json.RawMessage

	logs   chan string
	events chan json.RawMessage
	done   chan struct{}

	settleOnce sync.Once
	result     *RunResult
	err        error

	cancel context.CancelFunc

	mu          sync.Mutex
	abortReason string
}

// Send performs the single HTTP POST for a job and starts consuming the
// NDJSON response in the background. The returned error covers only local
// request construction; every runtime outcome settles through the Exchange.
func (c *Client) Send(ctx context.Context, endpoint string, creds Credentials, job *Job, timeout time.Duration) (*Exchange, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal job")
	}

	// Deadline armed at send time; expiry tears down the connection.
	var exCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		exCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		exCtx, cancel = context.WithCancel(ctx)
	}

	req, err := http.NewRequestWithContext(exCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to build dispatch request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRunnerID, creds.RunnerID)
	req.Header.Set(HeaderRunnerName, creds.RunnerName)
	req.Header.Set(HeaderRunnerSecret, creds.Secret)

	ex := &Exchange{
		logs:   make(chan string, 64),
		events: make(chan json.RawMessage, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	ex.Logs = ex.logs
	ex.Events = ex.events

	go c.consume(exCtx, ex, req, job.RunID)

	return ex, nil
}

// Wait blocks until the exchange settles or ctx is done.
func (ex *Exchange) Wait(ctx context.Context) (*RunResult, error) {
	select {
	case <-ex.done:
		return ex.result, ex.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait cancelled")
	}
}

// Abort cancels the exchange with an explicit reason, distinct from a
// timeout. Used when admission logic decides a job must stop, e.g. its
// runner was disabled mid-flight. Idempotent.
func (ex *Exchange) Abort(reason string) {
	ex.mu.Lock()
	if ex.abortReason == "" {
		ex.abortReason = reason
	}
	ex.mu.Unlock()
	ex.cancel()
}

// settle records the terminal outcome at most once and closes the
// exchange's channels. Late events after settlement are no-ops.
func (ex *Exchange) settle(result *RunResult, err error) {
	ex.settleOnce.Do(func() {
		ex.result = result
		ex.err = err
		close(ex.logs)
		close(ex.events)
		close(ex.done)
		ex.cancel()
	})
}

// terminalError translates a raw consumption failure into the classified
// error for settlement, folding in abort and timeout state.
func (ex *Exchange) terminalError(ctx context.Context, raw error) error {
	ex.mu.Lock()
	reason := ex.abortReason
	ex.mu.Unlock()

	if reason != "" {
		return errors.Newf("dispatch aborted: %s", reason)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrTimeout, "dispatch timed out")
	}
	return raw
}

// consume runs the HTTP exchange and feeds the channels. Exactly one
// settle call happens on every path out of this function.
func (c *Client) consume(ctx context.Context, ex *Exchange, req *http.Request, runID string) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: the runner was never (or no longer)
		// reachable. Classified unavailable so the boundary can say 503.
		ex.settle(nil, ex.terminalError(ctx, errors.Wrap(errors.ErrRunnerUnavailable, err.Error())))
		return
	}
	defer resp.Body.Close()

	// HTTP >= 400 short-circuits without parsing the stream.
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		ex.settle(nil, ex.terminalError(ctx,
			errors.Newf("runner responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))))
		return
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadBytes('\n')

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			msg, parseErr := parseLine(trimmed)
			if parseErr != nil {
				// Protocol violation: attach the raw payload for
				// operator diagnostics, never for API responses.
				err := errors.WithDetail(
					errors.Newf("malformed stream line from runner: %v", parseErr),
					string(trimmed),
				)
				ex.settle(nil, ex.terminalError(ctx, err))
				return
			}

			switch msg.Kind {
			case KindLog:
				select {
				case ex.logs <- msg.Line:
				case <-ctx.Done():
					ex.settle(nil, ex.terminalError(ctx, errors.Wrap(ctx.Err(), "dispatch cancelled")))
					return
				}
			case KindResult:
				ex.settle(msg.Result, nil)
				// Drain nothing further; the logical exchange is over.
				return
			case KindOther:
				select {
				case ex.events <- msg.Raw:
				case <-ctx.Done():
					ex.settle(nil, ex.terminalError(ctx, errors.Wrap(ctx.Err(), "dispatch cancelled")))
					return
				default:
					// Unknown messages are advisory; drop rather than
					// stall the log stream when nobody is listening.
					c.logger.Debugw("Dropped unrecognized stream message", "run_id", runID)
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				// Clean stream end with no result message: the runner
				// crashed or hung after partial output. Never a success.
				ex.settle(nil, ex.terminalError(ctx,
					errors.New("runner stream ended without a result message")))
			} else {
				ex.settle(nil, ex.terminalError(ctx,
					errors.Wrap(readErr, "error reading runner stream")))
			}
			return
		}
	}
}
