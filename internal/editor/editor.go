// Package editor opens source files at a line in a code editor.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var (
	ErrUnknownEditor       = errors.New("unknown editor")
	ErrUnsupportedPlatform = errors.New("editor not supported on this platform")
	ErrEditorNotFound      = errors.New("editor not found in default search paths")
	ErrNoEditor            = errors.New("no code editor configured")
)

type template struct {
	binGlobs []string
	command  string
}

// SuggestedOrder is the order in which installed editors are looked up.
var SuggestedOrder = []string{"vscode", "sublime", "pycharm"}

var templates = map[string]map[string]template{
	"pycharm": {
		"windows": {
			binGlobs: []string{
				`C:\Program Files\JetBrains\Pycharm*\bin\pycharm64.exe`,
				`C:\Users\{user}\AppData\Local\Programs\JetBrains\Pycharm*\bin\pycharm64.exe`,
			},
			command: `"{bin}" --line {lineNum} "{fileName}"`,
		},
		"linux": {
			binGlobs: []string{"/snap/bin/pycharm-community"},
			command:  `"{bin}" --line {lineNum} "{fileName}"`,
		},
	},
	"vscode": {
		"windows": {command: `code -g "{fileName}":{lineNum}`},
		"linux":   {command: `code -g "{fileName}":{lineNum}`},
		"darwin":  {command: `code -g "{fileName}":{lineNum}`},
	},
	"sublime": {
		"windows": {
			binGlobs: []string{
				`C:\Program Files\Sublime Text\subl.exe`,
				`C:\Program Files (x86)\Sublime Text\subl.exe`,
			},
			command: `"{bin}" "{fileName}":{lineNum}`,
		},
		"darwin": {
			binGlobs: []string{"/Applications/Sublime Text.app/Contents/SharedSupport/bin/subl"},
			command:  `"{bin}" "{fileName}":{lineNum}`,
		},
		"linux": {
			binGlobs: []string{"/usr/bin/subl", "/usr/local/bin/subl"},
			command:  `"{bin}" "{fileName}":{lineNum}`,
		},
	},
}

// Resolver turns editor names into command templates for one platform.
type Resolver struct {
	GOOS string
	Glob func(pattern string) ([]string, error)
	User func() (string, error)
}

// DefaultResolver resolves for the running platform.
var DefaultResolver = Resolver{
	GOOS: runtime.GOOS,
	Glob: filepath.Glob,
	User: func() (string, error) {
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		return u.Username, nil
	},
}

// Command returns the template of a named editor. Anything that isn't a
// known editor name is taken as a template.
func (r Resolver) Command(editor string) (string, error) {
	if _, ok := templates[editor]; !ok {
		if editor == "" {
			return "", ErrNoEditor
		}
		if !strings.Contains(editor, "{fileName}") {
			return "", fmt.Errorf("%w: %q", ErrUnknownEditor, editor)
		}
		return editor, nil
	}
	return r.generate(editor)
}

// Suggest returns the template of the first editor found.
func (r Resolver) Suggest() (string, error) {
	for _, name := range SuggestedOrder {
		if cmd, err := r.generate(name); err == nil {
			return cmd, nil
		}
	}
	return "", ErrNoEditor
}

func (r Resolver) generate(editor string) (string, error) {
	t, ok := templates[editor][r.GOOS]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedPlatform, editor, r.GOOS)
	}
	if !strings.Contains(t.command, "{bin}") {
		return t.command, nil
	}
	for _, g := range t.binGlobs {
		if strings.Contains(g, "{user}") {
			name, err := r.User()
			if err != nil {
				continue
			}
			g = strings.ReplaceAll(g, "{user}", name)
		}
		candidates, err := r.Glob(g)
		if err != nil || len(candidates) == 0 {
			continue
		}
		return strings.ReplaceAll(t.command, "{bin}", candidates[0]), nil
	}
	return "", fmt.Errorf("%w: %s", ErrEditorNotFound, editor)
}

func Command(editor string) (string, error) {
	return DefaultResolver.Command(editor)
}

func Suggest() (string, error) {
	return DefaultResolver.Suggest()
}

// Expand fills a template with a file and a line.
func Expand(tmpl, file string, line int) string {
	return strings.NewReplacer(
		"{fileName}", file,
		"{lineNum}", strconv.Itoa(line),
	).Replace(tmpl)
}

// Invoke runs the expanded template through the platform shell.
func Invoke(ctx context.Context, tmpl, file string, line int) error {
	if tmpl == "" {
		return ErrNoEditor
	}
	command := Expand(tmpl, file, line)
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("editor: %s: %w: %s", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
