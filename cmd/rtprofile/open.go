package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/rtprofile/internal/editor"
)

func newOpenCommand(o *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "open <file> <line>",
		Short: "Open a source file at a line in a code editor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil || line < 0 {
				return fmt.Errorf("invalid line %q", args[1])
			}
			if name == "" {
				name = o.config.Editor
			}
			var tmpl string
			if name == "" {
				tmpl, err = editor.Suggest()
			} else {
				tmpl, err = editor.Command(name)
			}
			if errors.Is(err, editor.ErrNoEditor) {
				fmt.Fprintf(cmd.OutOrStdout(), "No code editor configured. File: %s:%d\n", args[0], line)
				return nil
			}
			if err != nil {
				return err
			}
			log.Debug().Str("command", tmpl).Msg("opening editor")
			return editor.Invoke(cmd.Context(), tmpl, args[0], line)
		},
	}
	cmd.Flags().StringVar(&name, "editor", "", "editor name (vscode, sublime, pycharm) or a command template with {fileName} and {lineNum}")
	return cmd
}
