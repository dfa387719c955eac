package ids

import (
	"crypto/rand"
	"math/big"

	"github.com/segmentio/ksuid"
)

// CodeAlphabet leaves out characters that are easy to confuse when read
// aloud or typed from a printed card (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const DefaultCodeLength = 6

func New() string {
	return ksuid.New().String()
}

func NewEventCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	max := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
