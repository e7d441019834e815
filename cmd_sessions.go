package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"director-console/internal/logs"
	"director-console/internal/notify"
	"director-console/internal/sqlconsole"
	"director-console/internal/status"
)

var (
	statusWatch bool
	statusKeys  []string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Follow the site's process log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		out := cmd.OutOrStdout()
		f := a.FollowLogs(logs.Config{
			OnLine: func(line string) { io.WriteString(out, line) },
		})
		if err := f.Start(cmd.Context()); err != nil {
			return err
		}
		<-cmd.Context().Done()
		return nil
	},
}

var errSiteDeleted = errors.New(status.DeletedMessage)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show site information and process state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		out := cmd.OutOrStdout()
		first := make(chan struct{})
		var seen bool
		if statusWatch {
			a.Notifications().Subscribe(func(n notify.Notification) {
				fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
			})
		}
		w := a.WatchStatus(status.Config{
			OnStatus: func(st status.SiteStatus) {
				if statusWatch {
					fmt.Fprintln(out, st.Text())
				}
				if !seen {
					seen = true
					close(first)
				}
			},
		})
		if err := w.Start(cmd.Context()); err != nil {
			return err
		}

		select {
		case <-cmd.Context().Done():
			return nil
		case <-w.Done():
			if w.Deleted() {
				return errSiteDeleted
			}
			return nil
		case <-first:
		}

		info := w.Info()
		for _, key := range statusKeys {
			if v, ok := info.Lookup(key); ok {
				fmt.Fprintf(out, "%s: %s\n", key, v)
			}
		}
		if st, ok := w.Status(); ok && !statusWatch {
			fmt.Fprintf(out, "process: %s\n", st.Text())
		}
		if !statusWatch {
			return nil
		}

		select {
		case <-cmd.Context().Done():
		case <-w.Done():
			if w.Deleted() {
				return errSiteDeleted
			}
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the site process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		return a.Client().Restart(cmd.Context())
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql [statement]",
	Short: "Run SQL against the site database",
	Long: `With a statement, runs it once and prints the result. Otherwise opens an
interactive console on a terminal, or runs each line read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		console := a.SQL()
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			result, err := console.Submit(cmd.Context(), strings.Join(args, " "))
			writeResult(out, result)
			return err
		}

		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("failed to enter raw mode: %w", err)
			}
			defer term.Restore(fd, state)
			return console.Run(cmd.Context(), os.Stdin, out)
		}
		return runSQLLines(cmd, console)
	},
}

func runSQLLines(cmd *cobra.Command, console *sqlconsole.Console) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	var failed bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := console.Submit(cmd.Context(), line)
		writeResult(out, result)
		if err != nil {
			failed = true
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if failed {
		return errors.New("one or more statements failed")
	}
	return nil
}

func writeResult(w io.Writer, result string) {
	if result != "" && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	io.WriteString(w, result)
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep printing process state changes")
	statusCmd.Flags().StringSliceVarP(&statusKeys, "key", "k", []string{"name", "domains", "database.db_url"}, "Site information keys to print")

	rootCmd.AddCommand(logsCmd, statusCmd, restartCmd, sqlCmd)
}
