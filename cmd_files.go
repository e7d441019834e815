package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"director-console/internal/filetree"
	"director-console/internal/pathutil"
)

var (
	treeExpand     []string
	treeShowHidden bool
	treeWait       time.Duration
	rmRecursive    bool
	zipOutput      string
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the site's file tree",
	Long: `Connects to the file-watch socket, expands the requested directories and
prints the tree once the listing has settled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		w := a.WatchFiles()
		changed := make(chan struct{}, 1)
		w.OnChange(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err := w.Start(cmd.Context()); err != nil {
			return err
		}

		expanded := map[string]bool{}
		timer := time.NewTimer(treeWait)
		defer timer.Stop()
	wait:
		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-changed:
				if !w.Synced() {
					continue
				}
				for _, p := range treeExpand {
					p = pathutil.JoinPaths(pathutil.Segments(p)...)
					if expanded[p] {
						continue
					}
					var found bool
					w.View(func(t *filetree.Tree) {
						n := t.Resolve(p)
						found = n != nil && n.IsDir()
						if found && n.Expanded {
							expanded[p] = true
							found = false
						}
					})
					if found {
						expanded[p] = true
						w.Toggle(p)
					}
				}
				timer.Reset(treeWait)
			case <-timer.C:
				if w.Synced() {
					break wait
				}
				timer.Reset(treeWait)
			}
		}

		out := cmd.OutOrStdout()
		showHidden := treeShowHidden || a.Settings().ShowHidden
		w.View(func(t *filetree.Tree) {
			t.Walk(showHidden, func(n *filetree.Node, depth int) {
				fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth), treeLabel(n))
				if n.Err != "" {
					fmt.Fprintf(out, "%s  ! %s\n", strings.Repeat("  ", depth), n.Err)
				}
			})
		})
		return nil
	},
}

func treeLabel(n *filetree.Node) string {
	switch {
	case n.IsDir():
		return n.Name + "/"
	case n.Kind == filetree.KindLink:
		return n.Name + " -> " + n.Target
	case n.Executable():
		return n.Name + "*"
	}
	return n.Name
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		data, err := a.Files().Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put <path> [local-file]",
	Short: "Write a file from a local file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src io.Reader = cmd.InOrStdin()
		if len(args) == 2 {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}
		content, err := io.ReadAll(src)
		if err != nil {
			return err
		}

		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		return a.Files().Write(cmd.Context(), args[0], content)
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		return a.Files().Create(cmd.Context(), args[0])
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		return a.Files().Mkdir(cmd.Context(), args[0])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file, or a directory with -r",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		if rmRecursive {
			return a.Files().RemoveAll(cmd.Context(), args[0])
		}
		return a.Files().Remove(cmd.Context(), args[0])
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <old> <new>",
	Short: "Rename or move a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		return a.Rename(cmd.Context(), args[0], args[1])
	},
}

var chmodCmd = &cobra.Command{
	Use:   "chmod <+x|-x> <path>",
	Short: "Set or clear the executable bit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var executable bool
		switch args[0] {
		case "+x":
			executable = true
		case "-x":
		default:
			return fmt.Errorf("invalid mode %q: want +x or -x", args[0])
		}
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		return a.Files().Chmod(cmd.Context(), args[1], executable)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <dir> <local-file>...",
	Short: "Upload local files into a site directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		contents := make(map[string][]byte, len(args)-1)
		for _, p := range args[1:] {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			contents[filepath.Base(p)] = data
		}

		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		if cfg.SSH.Enabled {
			for name, data := range contents {
				if err := a.Files().Write(cmd.Context(), pathutil.JoinPaths(dir, name), data); err != nil {
					return err
				}
			}
			return nil
		}
		files := make(map[string]io.Reader, len(contents))
		for name, data := range contents {
			files[name] = bytes.NewReader(data)
		}
		return a.Client().Upload(cmd.Context(), dir, files)
	},
}

var zipCmd = &cobra.Command{
	Use:   "zip <dir>",
	Short: "Download a directory as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()
		data, err := a.Client().DownloadZip(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if zipOutput == "" || zipOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(zipOutput, data, 0644)
	},
}

func init() {
	treeCmd.Flags().StringSliceVarP(&treeExpand, "expand", "e", nil, "Directories to expand")
	treeCmd.Flags().BoolVarP(&treeShowHidden, "all", "a", false, "Show hidden entries")
	treeCmd.Flags().DurationVar(&treeWait, "wait", 500*time.Millisecond, "Quiet period before printing")
	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Remove directories and their contents")
	zipCmd.Flags().StringVarP(&zipOutput, "output", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(treeCmd, catCmd, putCmd, touchCmd, mkdirCmd, rmCmd, mvCmd, chmodCmd, uploadCmd, zipCmd)
}
