// Package completion generates and installs shell completion scripts for
// the livemap CLI.
package completion

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/safemelbourne/livemap/pkg/errors"
)

// Supported shells.
const (
	ShellBash = "bash"
	ShellZsh  = "zsh"
	ShellFish = "fish"
)

// Shells lists the supported shells in help order.
var Shells = []string{ShellBash, ShellZsh, ShellFish}

// Generate writes the completion script for shell to w.
func Generate(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case ShellBash:
		return root.GenBashCompletionV2(w, true)
	case ShellZsh:
		return root.GenZshCompletion(w)
	case ShellFish:
		return root.GenFishCompletion(w, true)
	default:
		return errors.NewValidationError("shell", shell, "must be one of: bash, zsh, fish")
	}
}

// Install writes the completion script for shell to its per-user location
// under home and returns the path written.
func Install(root *cobra.Command, shell, home string) (string, error) {
	path, err := Path(shell, home)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.NewConfigError("completion", "creating "+filepath.Dir(path), err)
	}

	file, err := os.Create(path) // #nosec G304 - path is built by Path
	if err != nil {
		return "", errors.NewConfigError("completion", "creating "+path, err)
	}
	defer file.Close()

	if err := Generate(root, shell, file); err != nil {
		return "", err
	}
	return path, nil
}

// Path returns the per-user completion file for shell under home.
func Path(shell, home string) (string, error) {
	name := filepath.Base(os.Args[0])
	if name == "" || name == "." {
		name = "livemap"
	}
	return PathFor(shell, home, name)
}

// PathFor returns the per-user completion file for program under home.
func PathFor(shell, home, program string) (string, error) {
	switch shell {
	case ShellBash:
		return filepath.Join(home, ".bash_completion.d", program), nil
	case ShellZsh:
		return filepath.Join(home, ".zsh", "completions", "_"+program), nil
	case ShellFish:
		return filepath.Join(home, ".config", "fish", "completions", program+".fish"), nil
	default:
		return "", errors.NewValidationError("shell", shell, "must be one of: bash, zsh, fish")
	}
}
