package utils

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TrackingIDLength is the length of open/click tracking tokens.
const TrackingIDLength = 24

// GenerateNanoID returns an opaque lowercase alphanumeric id of the given length.
func GenerateNanoID(length int) string {
	id, err := gonanoid.Generate(nanoidAlphabet, length)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateNanoIDWithPrefix returns ids like "key_x1y2...".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoID(length))
}

// GenerateTrackingID returns a 24-char opaque token for open pixels and
// click redirects.
func GenerateTrackingID() string {
	return GenerateNanoID(TrackingIDLength)
}

// GenerateMessageID creates an RFC 5322 Message-Id scoped to the sending
// domain: <unixmicro.token@domain>.
func GenerateMessageID(domain string) string {
	localPart := fmt.Sprintf("%d.%s", time.Now().UnixMicro(), GenerateNanoID(12))
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}
