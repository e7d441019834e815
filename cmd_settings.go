package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"director-console/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:         "settings",
	Short:       "Show or change console settings",
	Annotations: map[string]string{offline: "true"},
}

var settingsGetCmd = &cobra.Command{
	Use:         "get [key]",
	Short:       "Print one setting, or all of them",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{offline: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		s := store.Settings()
		keys := settings.Keys()
		if len(args) == 1 {
			keys = args
		}
		out := cmd.OutOrStdout()
		for _, key := range keys {
			v, err := s.Get(key)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Fprintln(out, v)
				continue
			}
			fmt.Fprintf(out, "%s = %s\n", key, v)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting for this site",
	Long: `Changes a setting for the configured site. Consoles of the same site that
are running pick the change up. Valid values:

` + choicesHelp(),
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{offline: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		s, err := store.Set(args[0], args[1])
		if err != nil {
			return err
		}
		// Coupled settings may have changed too.
		if args[0] == settings.LayoutTheme {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", settings.EditorTheme, s.EditorTheme)
		}
		return nil
	},
}

var resetLayoutCmd = &cobra.Command{
	Use:         "reset-layout",
	Short:       "Forget the stored pane layout",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{offline: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		return store.ResetLayout()
	},
}

func choicesHelp() string {
	var b strings.Builder
	for _, key := range settings.Keys() {
		choices := settings.Choices(key)
		if len(choices) == 0 {
			choices = []string{"true", "false"}
		}
		for i, c := range choices {
			if c == "" {
				choices[i] = `""`
			}
		}
		fmt.Fprintf(&b, "  %s: %s\n", key, strings.Join(choices, ", "))
	}
	return b.String()
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, resetLayoutCmd)
	rootCmd.AddCommand(settingsCmd)
}
