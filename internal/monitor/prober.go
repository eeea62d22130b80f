package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/makt28/tgwatch/internal/config"
)

// maxBodyBytes caps how much of any probe response is read.
const maxBodyBytes = 1 << 20

// Prober is the interface for all probe implementations. Probe never fails:
// errors and timeouts are reported as problem signals.
type Prober interface {
	Name() string
	Probe(ctx context.Context) []Signal
}

// describeErr strips the request URL from transport errors so credentials
// embedded in paths never reach logs or notifications.
func describeErr(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}

func errorSignal(source string, latency time.Duration, err error) Signal {
	return Signal{
		Source:  source,
		Problem: true,
		Detail:  "error=" + describeErr(err),
		Latency: latency,
	}
}

func httpDetail(status int, latency time.Duration) string {
	return fmt.Sprintf("status=%d, time=%dms", status, latency.Milliseconds())
}

// --- API Liveness Prober ---

// APIProber calls the bot API's getMe method.
type APIProber struct {
	BaseURL         string
	BotToken        string
	MaxResponseTime time.Duration
	Client          *http.Client
}

func (p *APIProber) Name() string { return SourceAPI }

func (p *APIProber) Probe(ctx context.Context) []Signal {
	return []Signal{p.probe(ctx)}
}

func (p *APIProber) probe(ctx context.Context) Signal {
	if p.BotToken == "" {
		return Signal{Source: SourceAPI, Problem: true, Detail: "missing bot token"}
	}

	target := strings.TrimRight(p.BaseURL, "/") + "/bot" + p.BotToken + "/getMe"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errorSignal(SourceAPI, 0, errors.New("create request: invalid api base url"))
	}

	start := time.Now()
	resp, err := clientOrDefault(p.Client).Do(req)
	if err != nil {
		return errorSignal(SourceAPI, time.Since(start), err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	var body struct {
		OK bool `json:"ok"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body)

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		decodeErr == nil && body.OK &&
		latency <= p.MaxResponseTime

	return Signal{
		Source:  SourceAPI,
		Problem: !healthy,
		Detail:  httpDetail(resp.StatusCode, latency),
		Latency: latency,
	}
}

// --- Web Reachability Prober ---

// WebProber issues one GET per URL. Each URL yields its own signal.
type WebProber struct {
	URLs            []string
	MaxResponseTime time.Duration
	Client          *http.Client
}

func (p *WebProber) Name() string { return "web" }

func (p *WebProber) Probe(ctx context.Context) []Signal {
	signals := make([]Signal, len(p.URLs))

	var g errgroup.Group
	for i, u := range p.URLs {
		i, u := i, u
		g.Go(func() error {
			signals[i] = p.fetch(ctx, u)
			return nil
		})
	}
	g.Wait()

	return signals
}

func (p *WebProber) fetch(ctx context.Context, target string) Signal {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errorSignal(target, 0, fmt.Errorf("create request: %w", err))
	}

	start := time.Now()
	resp, err := clientOrDefault(p.Client).Do(req)
	if err != nil {
		return errorSignal(target, time.Since(start), err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300 && latency <= p.MaxResponseTime
	return Signal{
		Source:  target,
		Problem: !ok,
		Detail:  httpDetail(resp.StatusCode, latency),
		Latency: latency,
	}
}

// ProbersFromConfig builds the three standard probers.
func ProbersFromConfig(cfg config.Config, client *http.Client) []Prober {
	budget := cfg.Decision.MaxResponseTime()
	ch := cfg.Probes.CheckHost

	return []Prober{
		&APIProber{
			BaseURL:         cfg.Probes.API.BaseURL,
			BotToken:        cfg.Probes.API.BotToken,
			MaxResponseTime: budget,
			Client:          client,
		},
		&CheckHostProber{
			BaseURL:         ch.BaseURL,
			Target:          ch.Target,
			MaxNodes:        ch.MaxNodes,
			FailNodes:       ch.FailNodes,
			PollAttempts:    ch.PollAttempts,
			PollInterval:    ch.PollInterval,
			MaxResponseTime: budget,
			Client:          client,
		},
		&WebProber{
			URLs:            cfg.Probes.Web.URLs,
			MaxResponseTime: budget,
			Client:          client,
		},
	}
}

// NewHTTPClient returns the client shared by all probers. Deadlines come
// from the per-probe context, not from the client.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
