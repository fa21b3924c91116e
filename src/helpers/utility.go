package helpers

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID generates ids for index descriptors
func GenerateUUID() string {
	return uuid.New().String()
}

var (
	idMu     sync.Mutex
	lastMill int64
)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewDocumentID returns "<monotonic-millis>_<9-char base36 random>".
// The millisecond prefix keeps ids in rough insertion order when sorted
// lexicographically; the monotonic guard prevents the prefix from moving
// backwards if the wall clock does.
func NewDocumentID() string {
	idMu.Lock()
	now := time.Now().UnixMilli()
	if now <= lastMill {
		now = lastMill + 1
	}
	lastMill = now
	idMu.Unlock()

	var b strings.Builder
	b.WriteString(strconv.FormatInt(now, 10))
	b.WriteByte('_')
	for i := 0; i < 9; i++ {
		b.WriteByte(base36Chars[rand.Intn(len(base36Chars))])
	}
	return b.String()
}
