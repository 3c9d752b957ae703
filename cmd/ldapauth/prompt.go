package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is replaced in tests.
var readPassword = term.ReadPassword

// promptPassword reads a password from the terminal without echo.
func promptPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// passwordValue returns the flag value when it was given, otherwise prompts.
func passwordValue(w io.Writer, flagValue string, given bool, prompt string) (string, error) {
	if given {
		return flagValue, nil
	}
	return promptPassword(w, prompt)
}
