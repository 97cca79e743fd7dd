package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/fatih/color"
)

// promptConfirmer asks the user to confirm on the terminal. Anything other
// than 'y' or 'yes' is treated as a refusal.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p *promptConfirmer) Confirm(prompt string) (bool, error) {
	color.New(color.FgYellow).Fprintf(p.out, "%s [y/N] ", prompt)

	response, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

type autoConfirmer struct{}

func (autoConfirmer) Confirm(string) (bool, error) { return true, nil }
