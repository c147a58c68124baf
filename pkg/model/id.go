package model

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// LocalIDPrefix marks identifiers minted on this machine. Remote document
// ids never carry it, which is how a record that was never persisted
// remotely is told apart during a switch to remote mode.
const LocalIDPrefix = "task_"

const (
	idAlphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixSize = 9
)

// NewLocalID mints "task_<unix millis>_<9 base36 chars>".
func NewLocalID(now time.Time) string {
	var sb strings.Builder
	sb.WriteString(LocalIDPrefix)
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	sb.WriteByte('_')
	max := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < idSuffixSize; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		sb.WriteByte(idAlphabet[n.Int64()])
	}
	return sb.String()
}

// IsLocalID reports whether id was minted by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
