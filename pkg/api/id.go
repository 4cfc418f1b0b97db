package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	runIDPrefix      = "run_"
	messageIDPrefix  = "msg_"
	sessionIDPrefix  = "sess_"
	artifactIDPrefix = "art_"
	callIDPrefix     = "call_"
)

var (
	runIDPattern     = regexp.MustCompile(`^run_[a-zA-Z0-9]{24}$`)
	sessionIDPattern = regexp.MustCompile(`^sess_[a-zA-Z0-9]{24}$`)
)

// NewRunID generates a new run ID with the "run_" prefix followed by 24
// cryptographically random alphanumeric characters.
func NewRunID() string {
	return runIDPrefix + randomAlphanumeric(idLength)
}

// NewMessageID generates a new message ID with the "msg_" prefix.
func NewMessageID() string {
	return messageIDPrefix + randomAlphanumeric(idLength)
}

// NewSessionID generates a new session ID with the "sess_" prefix.
func NewSessionID() string {
	return sessionIDPrefix + randomAlphanumeric(idLength)
}

// NewArtifactID generates a new artifact ID with the "art_" prefix.
func NewArtifactID() string {
	return artifactIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID generates a tool call ID for oracle backends that do not
// assign one.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateRunID checks whether the given string is a well-formed run ID.
func ValidateRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// ValidateSessionID checks whether the given string is a well-formed session ID.
func ValidateSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
