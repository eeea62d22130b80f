package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/makt28/tgwatch/internal/metrics"
	"github.com/makt28/tgwatch/internal/monitor"
	"github.com/makt28/tgwatch/internal/storage"
)

func newTickCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single probe-and-decide cycle and exit",
		Long: `Run one tick: probe, update the alert state, notify on a transition and
persist. Intended for external schedulers such as systemd timers or a
Kubernetes CronJob. Exits non-zero when the state could not be persisted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			store, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Error("failed to close state store", "error", err)
				}
			}()

			repo := storage.NewStateRepository(store, cfg.Store.Key)
			out := newRunner(cfg, repo, metrics.Nop()).Tick(ctx)

			if asJSON {
				if err := writeOutcomeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				renderOutcome(cmd.OutOrStdout(), out)
			}

			switch {
			case out.Fault != nil:
				return out.Fault
			case out.Cancelled:
				return errors.New("tick cancelled before a decision was made")
			case !out.Persisted:
				return errors.New("alert state was not persisted")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

type signalJSON struct {
	Source    string `json:"source"`
	Problem   bool   `json:"problem"`
	Detail    string `json:"detail,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

type notificationJSON struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type outcomeJSON struct {
	ID            string             `json:"id"`
	Signals       []signalJSON       `json:"signals"`
	ShouldAlert   bool               `json:"shouldAlert"`
	Alerting      bool               `json:"alerting"`
	Since         string             `json:"since"`
	Fails         int                `json:"consecutiveFails"`
	Transition    string             `json:"transition"`
	Notifications []notificationJSON `json:"notifications"`
	Persisted     bool               `json:"persisted"`
	DurationMs    int64              `json:"durationMs"`
}

func writeOutcomeJSON(w io.Writer, out monitor.Outcome) error {
	doc := outcomeJSON{
		ID:            out.ID,
		Signals:       make([]signalJSON, 0, len(out.Signals)),
		ShouldAlert:   out.ShouldAlert,
		Alerting:      out.Next.Alerting,
		Since:         out.Next.Since.UTC().Format(time.RFC3339),
		Fails:         out.Next.ConsecutiveFails,
		Transition:    out.Transition.String(),
		Notifications: make([]notificationJSON, 0, len(out.Notifications)),
		Persisted:     out.Persisted,
		DurationMs:    out.Duration.Milliseconds(),
	}
	for _, s := range out.Signals {
		doc.Signals = append(doc.Signals, signalJSON{
			Source:    s.Source,
			Problem:   s.Problem,
			Detail:    s.Detail,
			LatencyMs: s.Latency.Milliseconds(),
		})
	}
	for _, n := range out.Notifications {
		nj := notificationJSON{Channel: n.Channel, Status: n.Status}
		if n.Err != nil {
			nj.Error = n.Err.Error()
		}
		doc.Notifications = append(doc.Notifications, nj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}

func renderOutcome(w io.Writer, out monitor.Outcome) {
	fmt.Fprintln(w, title.Render("tgwatch tick"), dimText.Render(out.ID))
	fmt.Fprintln(w)

	for _, s := range out.Signals {
		dot := dotHealthy
		if s.Problem {
			dot = dotUnhealthy
		}
		fmt.Fprintf(w, "  %s %s %s\n", dot, s.Source, dimText.Render(s.Detail))
	}
	fmt.Fprintln(w)

	state := healthy.Render("healthy")
	if out.Next.Alerting {
		state = unhealthy.Render("ALERTING")
	}
	fmt.Fprintf(w, "  state       %s (consecutive fails %d)\n", state, out.Next.ConsecutiveFails)
	fmt.Fprintf(w, "  transition  %s\n", out.Transition)

	for _, n := range out.Notifications {
		line := fmt.Sprintf("  notify      %s %s", n.Channel, n.Status)
		if n.Err != nil {
			line += " " + dimText.Render(n.Err.Error())
		}
		fmt.Fprintln(w, line)
	}

	if !out.Persisted {
		fmt.Fprintln(w, unhealthy.Render("  state not persisted"))
	}
	fmt.Fprintln(w, dimText.Render(fmt.Sprintf("  took %s", out.Duration.Round(time.Millisecond))))
}
