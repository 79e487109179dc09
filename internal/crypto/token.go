package crypto

import "encoding/base64"

// TokenBytes is the entropy of GenerateToken.
const TokenBytes = 32

// GenerateToken returns 32 random bytes encoded with standard base64 (44 chars).
func GenerateToken() (string, error) {
	b, err := RandBytes(TokenBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
