package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const minPasswordScore = 2

// promptPassword reads a password from the terminal without echoing. The
// prompt goes to stderr so command output stays pipeable.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// passwordFromEnvOrPrompt returns MKVAULT_PASSWORD when set, otherwise
// prompts. Scripted callers use the variable; interactive ones type it.
func passwordFromEnvOrPrompt(prompt string) (string, error) {
	if pw := viper.GetString("password"); pw != "" {
		return pw, nil
	}
	return promptPassword(prompt)
}

// promptNewPassword reads a password twice and applies the strength gate.
// It always prompts; the environment variable never names a new password.
func promptNewPassword(label string) (string, error) {
	pw, err := promptPassword(fmt.Sprintf("Enter %s: ", label))
	if err != nil {
		return "", err
	}
	if err := checkStrength(pw); err != nil {
		return "", err
	}
	confirm, err := promptPassword(fmt.Sprintf("Confirm %s: ", label))
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func checkStrength(pw string) error {
	if len(pw) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	strength := zxcvbn.PasswordStrength(pw, nil)
	if strength.Score < minPasswordScore {
		return fmt.Errorf("password too guessable (score %d of 4); use a longer or less common one", strength.Score)
	}
	return nil
}
