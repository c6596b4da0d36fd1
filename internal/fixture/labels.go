package fixture

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// LabelPrefix marks resources created by test runs.
const LabelPrefix = "ASD"

var labelSeq atomic.Uint32

// Timestamp returns the current time in milliseconds as a string.
func Timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// MaxLabelLen is the longest label the API accepts.
const MaxLabelLen = 32

// Label returns a unique label such as "ASDvol1718900000000a". Labels
// created in the same millisecond differ in their final character. A long
// kind is shortened so the timestamp is always kept whole.
func Label(kind string) string {
	n := labelSeq.Add(1)
	ts := Timestamp()
	suffix := string(rune('a' + n%26))
	if room := MaxLabelLen - len(LabelPrefix) - len(ts) - len(suffix); len(kind) > room {
		kind = kind[:room]
	}
	return LabelPrefix + kind + ts + suffix
}

// DomainName returns a unique throwaway zone name.
func DomainName() string {
	return strings.ToLower(LabelPrefix) + "-" + Timestamp() + "-" + gofakeit.DomainName()
}

// Username returns a unique account username.
func Username() string {
	return strings.ToLower(LabelPrefix) + uuid.NewString()[:8]
}

// RootPassword returns a random password meeting the API's strength rules.
func RootPassword() string {
	return gofakeit.Password(true, true, true, true, false, 24)
}

// RunID identifies one suite run in logs and result files.
func RunID() string {
	return uuid.NewString()
}
