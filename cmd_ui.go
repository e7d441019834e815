package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"director-console/internal/app"
	"director-console/internal/logs"
	"director-console/internal/notify"
	"director-console/internal/settings"
	"director-console/internal/status"
	"director-console/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the full-screen console",
	Long: `Shows the live file tree next to the process log, with site status and
notifications in the status line. Settings changed by other consoles of the
same site are picked up while it runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Log lines would tear the alternate screen.
		if cfg.Logging.File == "" {
			logger = zap.NewNop()
		}

		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var p *tea.Program
		// Callbacks may fire from inside Update; Send would block the loop.
		send := func(msg tea.Msg) {
			if p != nil {
				go p.Send(msg)
			}
		}

		files := a.WatchFiles()
		files.OnChange(func() { send(tui.RefreshMsg{}) })
		follower := a.FollowLogs(logs.Config{
			OnLine:  func(string) { send(tui.LogsMsg{}) },
			OnReset: func() { send(tui.LogsMsg{}) },
		})
		siteStatus := a.WatchStatus(status.Config{
			OnStatus: func(status.SiteStatus) { send(tui.RefreshMsg{}) },
		})

		model := tui.New(tui.Options{
			Title:         tui.Header(cfg.Site, cfg.URL),
			Files:         files,
			Logs:          follower,
			App:           a,
			Notifications: a.Notifications(),
			Layout:        a.Store(),
			Renamer:       a,
		})
		p = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		a.Register(app.ComponentFunc(func(s settings.Settings) { send(tui.SettingsMsg{Settings: s}) }))
		a.Notifications().Subscribe(func(n notify.Notification) { send(tui.NotifyMsg{Notification: n}) })

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return files.Start(gctx) })
		g.Go(func() error { return follower.Start(gctx) })
		g.Go(func() error { return siteStatus.Start(gctx) })
		g.Go(func() error { return a.Store().Watch(gctx) })
		g.Go(func() error {
			defer cancel()
			_, err := p.Run()
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}
