package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// stdin is where prompts read from. Tests replace it.
var (
	stdin       io.Reader = os.Stdin
	stdinReader *bufio.Reader
)

func input() *bufio.Reader {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(stdin)
	}
	return stdinReader
}

func readLine() (string, error) {
	line, err := input().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptLine prints label and reads one line.
func promptLine(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal,
// and a plain line otherwise.
func promptPassword(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine()
}

// promptYesNo asks a yes/no question; anything but y/yes is no.
func promptYesNo(out io.Writer, question string) bool {
	answer, err := promptLine(out, question+" [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// renameConfirmer returns the confirm callback for uploads. assumeYes
// accepts every suggested name.
func renameConfirmer(out io.Writer, assumeYes bool) func(desired, final string) bool {
	return func(desired, final string) bool {
		if assumeYes {
			fmt.Fprintf(out, "'%s' already exists, uploading as '%s'\n", desired, final)
			return true
		}
		return promptYesNo(out, fmt.Sprintf("'%s' already exists. Upload as '%s'?", desired, final))
	}
}
