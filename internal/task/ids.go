package task

import (
	"crypto/rand"
	"fmt"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const idSuffixLen = 4

// newTaskID builds "task-<unix millis>-<random suffix>". The millisecond
// prefix keeps ids roughly sortable; the suffix disambiguates ids minted in
// the same millisecond.
func newTaskID(now time.Time) (string, error) {
	buf := make([]byte, idSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("task: generating id: %w", err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return fmt.Sprintf("task-%d-%s", now.UnixMilli(), buf), nil
}
