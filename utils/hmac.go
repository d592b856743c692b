package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	// TaskSignatureHeader carries the hex HMAC of a task message.
	TaskSignatureHeader = "X-Task-Signature"
	// TaskTimestampHeader carries the unix seconds the signature was computed at.
	TaskTimestampHeader = "X-Task-Timestamp"
)

// EmptyBodyHash is the SHA256 hash of an empty body
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// BuildTaskStringToSign constructs the canonical string signed for a queued task.
// Format: ROUTING_KEY\nTIMESTAMP\nSHA256(body)
func BuildTaskStringToSign(routingKey string, timestamp int64, bodyHash string) string {
	return fmt.Sprintf("%s\n%d\n%s", routingKey, timestamp, bodyHash)
}

// ComputeHMACSHA256 computes HMAC-SHA256 signature and returns hex-encoded string.
func ComputeHMACSHA256(secretKey, message string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// SignTask returns the signature for body published under routingKey at timestamp.
func SignTask(secretKey, routingKey string, timestamp int64, body []byte) string {
	return ComputeHMACSHA256(secretKey, BuildTaskStringToSign(routingKey, timestamp, HashBodySHA256(body)))
}

// VerifyTask checks a signature produced by SignTask. The timestamp is taken from the
// message header in its string form.
func VerifyTask(secretKey, routingKey, timestamp string, body []byte, signature string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || signature == "" {
		return false
	}
	return SecureCompare(SignTask(secretKey, routingKey, ts, body), signature)
}

// SecureCompare performs constant-time string comparison.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashBodySHA256 computes SHA256 hash of body bytes and returns hex-encoded string.
// If body is nil or empty, returns EmptyBodyHash constant.
func HashBodySHA256(body []byte) string {
	if len(body) == 0 {
		return EmptyBodyHash
	}
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}
