package cli

import (
	"context"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/internal/browse"
	"github.com/quarrydata/quarry/internal/events"
	"github.com/quarrydata/quarry/internal/logging"
	"github.com/quarrydata/quarry/internal/metrics"
	"github.com/quarrydata/quarry/internal/session"
	"github.com/quarrydata/quarry/internal/tui"
	"github.com/quarrydata/quarry/pkg/client"
)

func newBrowseCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <kind/id>",
		Short: "Browse a resource hierarchy interactively",
		Long: `Open the interactive browser rooted at the given resource.

Check rows, pick them, navigate elsewhere and move or copy the picked
set into the folder you are looking at.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAuth(); err != nil {
				return err
			}
			kind, id, err := parseRef(args[0])
			if err != nil {
				return err
			}

			// Terminal output belongs to the TUI from here on.
			logFile := filepath.Join(os.TempDir(), "quarry-tui.log")
			if err := logging.Init(logging.Config{
				Level:      e.cfg.LogLevel,
				Format:     "json",
				OutputPath: logFile,
			}); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			root, err := e.client.GetResource(ctx, kind, id)
			if err != nil {
				return err
			}

			bus := events.NewBus()
			sess := session.New(bus)
			sess.SetToken(e.client.AuthToken())

			// Server notifications ride the same bus as local alerts.
			stream := client.NewNotificationStream(e.cfg.ServerURL)
			stream.SetAuthToken(e.client.AuthToken())
			go func() {
				for n := range stream.Subscribe(ctx) {
					remote := n
					bus.Publish(events.Event{Type: events.EventRemote, Remote: &remote})
				}
			}()

			if e.cfg.MetricsAddr != "" {
				go func() {
					if err := metrics.Serve(e.cfg.MetricsAddr); err != nil {
						logging.Error("metrics server stopped", zap.Error(err))
					}
				}()
			}

			itemsMode := browse.ModePaginated
			if e.cfg.ItemsMode == "append" {
				itemsMode = browse.ModeAppend
			}

			gate := tui.NewConfirmGate()
			hier, err := browse.New(root, browse.Options{
				Client:    e.client,
				Picked:    browse.NewPickedResources(),
				Bus:       bus,
				Confirm:   gate,
				PageSize:  e.cfg.PageSize,
				ItemsMode: itemsMode,
			})
			if err != nil {
				return err
			}

			program := tea.NewProgram(tui.New(hier, gate, bus), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}
