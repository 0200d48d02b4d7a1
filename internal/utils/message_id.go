package utils

import (
	"crypto/sha256"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID creates a unique RFC 5322 message id for outbound mail.
func GenerateMessageID(domain, metadata string) string {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		panic(err)
	}

	timestamp := time.Now().UnixMicro()

	var hashComponent string
	if metadata != "" {
		hash := sha256.Sum256([]byte(metadata))
		hashComponent = fmt.Sprintf(".%x", hash[:4])
	}

	localPart := fmt.Sprintf("%d.%s%s", timestamp, id, hashComponent)
	return fmt.Sprintf("<%s@%s>", localPart, domain)
}

// SyntheticMessageID derives a stable dedup key for messages that arrive
// without a Message-ID header.
func SyntheticMessageID(from, subject string, receivedAt time.Time) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", from, subject, receivedAt.Unix())))
	return fmt.Sprintf("synthetic-%x", hash[:16])
}
