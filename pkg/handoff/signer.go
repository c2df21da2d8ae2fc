package handoff

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Operator desk request headers.
const (
	SignatureHeader = "X-Supportflow-Signature-256"
	TicketHeader    = "X-Supportflow-Ticket"
	AttemptHeader   = "X-Supportflow-Attempt"
)

const signaturePrefix = "sha256="

// Sign returns "sha256=<hex>" over payload keyed by secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature was produced by Sign with secret.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

func attemptValue(n int) string { return strconv.Itoa(n) }
