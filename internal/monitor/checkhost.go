package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// nodeOK is the first value of a successful vantage-point result.
const nodeOK = 1

// CheckHostProber asks a distributed probing service to fetch Target from
// several vantage points, then polls for the per-node results.
type CheckHostProber struct {
	BaseURL         string
	Target          string
	MaxNodes        int
	FailNodes       int
	PollAttempts    int
	PollInterval    time.Duration
	MaxResponseTime time.Duration
	Client          *http.Client
}

// CheckHostReport summarizes one multi-vantage check.
type CheckHostReport struct {
	Total   int
	Failed  int
	Latency time.Duration
	// Err is set when submit or poll failed. The check then counts as failed
	// from every vantage point, whatever the threshold.
	Err error
}

// Problem applies the failing-node threshold and the latency budget.
func (r CheckHostReport) Problem(failNodes int, maxResponse time.Duration) bool {
	if r.Err != nil {
		return true
	}
	return r.Failed >= failNodes || r.Latency > maxResponse
}

func (p *CheckHostProber) Name() string { return SourceCheckHost }

func (p *CheckHostProber) Probe(ctx context.Context) []Signal {
	r := p.Check(ctx)
	if r.Err != nil {
		return []Signal{errorSignal(SourceCheckHost, r.Latency, r.Err)}
	}
	return []Signal{{
		Source:  SourceCheckHost,
		Problem: r.Problem(p.FailNodes, p.MaxResponseTime),
		Detail:  fmt.Sprintf("fail=%d/%d, time=%dms", r.Failed, r.Total, r.Latency.Milliseconds()),
		Latency: r.Latency,
	}}
}

type submitResponse struct {
	OK        int                        `json:"ok"`
	RequestID string                     `json:"request_id"`
	Nodes     map[string]json.RawMessage `json:"nodes"`
	Error     string                     `json:"error"`
}

// Check runs submit and poll. Latency is the submit round trip.
func (p *CheckHostProber) Check(ctx context.Context) CheckHostReport {
	base := strings.TrimRight(p.BaseURL, "/")

	q := url.Values{}
	q.Set("host", p.Target)
	q.Set("max_nodes", strconv.Itoa(p.MaxNodes))

	start := time.Now()
	var sub submitResponse
	if err := p.getJSON(ctx, base+"/check-http?"+q.Encode(), &sub); err != nil {
		return CheckHostReport{Latency: time.Since(start), Err: fmt.Errorf("submit: %w", err)}
	}
	latency := time.Since(start)

	if sub.RequestID == "" {
		msg := "no request_id in response"
		if sub.Error != "" {
			msg += ": " + sub.Error
		}
		return CheckHostReport{Latency: latency, Err: errors.New("submit: " + msg)}
	}

	nodes := make([]string, 0, len(sub.Nodes))
	for n := range sub.Nodes {
		nodes = append(nodes, n)
	}

	results, err := p.poll(ctx, base+"/check-result-extended/"+url.PathEscape(sub.RequestID), nodes)
	if err != nil {
		return CheckHostReport{Latency: latency, Err: fmt.Errorf("poll: %w", err)}
	}

	if len(nodes) == 0 {
		for n := range results {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return CheckHostReport{Latency: latency, Err: errors.New("no vantage points returned")}
	}

	failed := 0
	for _, n := range nodes {
		if !nodeSucceeded(results[n]) {
			failed++
		}
	}

	return CheckHostReport{Total: len(nodes), Failed: failed, Latency: latency}
}

// poll fetches results until every node has reported or attempts run out.
// Nodes still pending after the last attempt count as failed.
func (p *CheckHostProber) poll(ctx context.Context, resultURL string, nodes []string) (map[string]json.RawMessage, error) {
	attempts := max(p.PollAttempts, 1)

	var results map[string]json.RawMessage
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.PollInterval):
			}
		}

		var raw map[string]json.RawMessage
		if err := p.getJSON(ctx, resultURL, &raw); err != nil {
			return nil, err
		}
		results = unwrapResults(raw)

		if allReported(nodes, results) {
			break
		}
	}
	return results, nil
}

// unwrapResults accepts both the bare node map and one nested under "results".
func unwrapResults(raw map[string]json.RawMessage) map[string]json.RawMessage {
	if inner, ok := raw["results"]; ok {
		var m map[string]json.RawMessage
		if json.Unmarshal(inner, &m) == nil && m != nil {
			return m
		}
	}
	return raw
}

func allReported(nodes []string, results map[string]json.RawMessage) bool {
	if len(nodes) == 0 {
		return len(results) > 0
	}
	for _, n := range nodes {
		v, ok := results[n]
		if !ok || isNull(v) {
			return false
		}
	}
	return true
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// nodeSucceeded reports whether a node result looks like [[1, ...], ...].
func nodeSucceeded(v json.RawMessage) bool {
	var outer []json.RawMessage
	if json.Unmarshal(v, &outer) != nil || len(outer) == 0 {
		return false
	}
	var inner []json.RawMessage
	if json.Unmarshal(outer[0], &inner) != nil || len(inner) == 0 {
		return false
	}
	var code float64
	if json.Unmarshal(inner[0], &code) != nil {
		return false
	}
	return code == nodeOK
}

func (p *CheckHostProber) getJSON(ctx context.Context, target string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := clientOrDefault(p.Client).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
