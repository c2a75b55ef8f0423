package provision

import (
	"fmt"
	"log"

	pam "github.com/msteinert/pam/v2"
)

// VerifyAccount authenticates a provisioned system login through PAM.
//
// It is used after provisioning to confirm the chpasswd step took effect,
// and by administrative tooling to check a tunnel user's real OS
// credentials without touching shadow files directly.
func VerifyAccount(username, password string) error {
	// Start PAM authentication session with callback for password prompt.
	t, err := pam.StartFunc("sshd", username, func(s pam.Style, msg string) (string, error) {
		// Handle different PAM prompt styles.
		switch s {
		case pam.PromptEchoOff:
			// Password prompt (hidden input).
			return password, nil
		case pam.TextInfo:
			// Informational message, no input needed.
			return "", nil
		default:
			// Any other prompt, return empty.
			return "", nil
		}
	})
	if err != nil {
		log.Printf("VerifyAccount: PAM error for user '%s'", username)
		return fmt.Errorf("pam session: %w", err)
	}
	if err := t.Authenticate(0); err != nil {
		return fmt.Errorf("invalid credentials for '%s': %w", username, err)
	}
	return nil
}
