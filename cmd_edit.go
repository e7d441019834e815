package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"director-console/internal/editor"
	"director-console/internal/notify"
	"director-console/internal/pathutil"
)

var editCmd = &cobra.Command{
	Use:   "edit <path>",
	Short: "Edit a site file in $EDITOR",
	Long: `Loads the file, opens a local copy in $EDITOR (vi when unset) and saves it
back when the editor exits with changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		stderr := cmd.ErrOrStderr()
		a.Notifications().Subscribe(func(n notify.Notification) {
			fmt.Fprintln(stderr, n.Message)
		})
		var doc *editor.Document
		doc = a.OpenDocument(args[0], func(s editor.Status) {
			logger.Debug("document status", zap.String("path", args[0]), zap.Stringer("status", s))
			if s == editor.Saved || s == editor.Saving {
				fmt.Fprintln(stderr, doc.Title())
			}
		})
		defer doc.Close()
		if err := doc.Load(cmd.Context()); err != nil {
			return err
		}

		dir, err := os.MkdirTemp("", "director-edit-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		local := filepath.Join(dir, pathutil.Base(args[0]))
		original := doc.Content()
		if err := os.WriteFile(local, original, 0600); err != nil {
			return err
		}

		name := os.Getenv("EDITOR")
		if name == "" {
			name = "vi"
		}
		ed := exec.CommandContext(cmd.Context(), name, local)
		ed.Stdin, ed.Stdout, ed.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := ed.Run(); err != nil {
			return fmt.Errorf("failed to run editor: %w", err)
		}

		edited, err := os.ReadFile(local)
		if err != nil {
			return err
		}
		if bytes.Equal(edited, original) {
			fmt.Fprintln(stderr, "no changes")
			return nil
		}
		if err := doc.SetContent(edited); err != nil {
			return err
		}
		return doc.Save(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
}
