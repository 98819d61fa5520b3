package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Replaced in tests so no terminal is needed
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errNoPassword = errors.New("--pass is required when stdin is not a terminal")

// passwordOrPrompt returns flagValue, or reads a password from the terminal
// without echo when the flag was left empty
func passwordOrPrompt(flagValue string, w io.Writer) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errNoPassword
	}

	if _, err := fmt.Fprint(w, "Password: "); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimSpace(string(pw))
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
