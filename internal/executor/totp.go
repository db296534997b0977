package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// totpCode derives the current one-time code from a base32 seed. Seeds are
// often pasted with spaces or in lower case.
func totpCode(seed string, now time.Time) (string, error) {
	seed = strings.ToUpper(strings.ReplaceAll(seed, " ", ""))
	code, err := totp.GenerateCode(seed, now)
	if err != nil {
		return "", fmt.Errorf("failed to generate one-time code: %w", err)
	}
	return code, nil
}
