// SPDX-License-Identifier: Apache-2.0

// Package signing computes and checks the HMAC-SHA256 signatures carried in
// the X-Signature header of inbound and outbound webhooks.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const Header = "X-Signature"

// Sign returns the hex HMAC-SHA256 of payload, or "" when secret is blank.
func Sign(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC-SHA256 of payload under
// secret. An optional "sha256=" prefix is accepted.
func Verify(secret string, payload []byte, signature string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
