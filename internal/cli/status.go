package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/makt28/tgwatch/internal/storage"
	"github.com/makt28/tgwatch/internal/web"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted alert state without probing",
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

			now := time.Now()
			snap, err := storage.NewStateRepository(store, cfg.Store.Key).Load(ctx, now)
			if err != nil {
				return err
			}

			resp := web.NewStatusResponse(snap, now)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			renderStatus(cmd.OutOrStdout(), cfg.Notify.ServiceName, resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	return cmd
}

func renderStatus(w io.Writer, service string, resp web.StatusResponse) {
	since := "never recorded"
	if resp.Since != nil {
		since = *resp.Since
	}

	style := cardHealthy
	state := dotHealthy + " " + healthy.Render("operational")
	if resp.Alerting {
		style = cardUnhealthy
		state = dotUnhealthy + " " + unhealthy.Render("OUTAGE")
	}

	body := fmt.Sprintf("%s\n\n%s\n%s %s\n%s %d",
		title.Render(service),
		state,
		dimText.Render("since           "), since,
		dimText.Render("consecutive fails"), resp.ConsecutiveFails,
	)
	fmt.Fprintln(w, style.Render(body))
}
