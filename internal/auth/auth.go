// Package auth resolves and validates the Gemini API key and classifies model
// errors for logs and metrics.
package auth

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".aop-mockup"
	credentialFile = "credentials.gpg"
)

// GetAPIKey retrieves the Gemini API key. Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. GPG-encrypted file at ~/.aop-mockup/credentials.gpg
func GetAPIKey() (string, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No API key in environment or GPG file")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: "API key not found; set GEMINI_API_KEY or create " + filepath.Join("~", credentialDir, credentialFile),
		Err:     err,
	}
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if passphrasePath := os.Getenv("MOCKUP_GPG_PASSPHRASE_FILE"); passphrasePath != "" {
		fi, statErr := os.Stat(passphrasePath)
		switch {
		case statErr != nil:
			log.Warn().Err(statErr).Str("passphrase_file", passphrasePath).Msg("Passphrase file not readable; falling back to agent")
		case fi.Mode().Perm()&0077 != 0:
			log.Warn().
				Str("passphrase_file", passphrasePath).
				Str("permissions", fmt.Sprintf("%04o", fi.Mode().Perm())).
				Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		default:
			args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
		}
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}
