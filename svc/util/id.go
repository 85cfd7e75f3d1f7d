package util

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	base62Chars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	suffixLength = 8
)

// NewEntryID returns "<base36 unix millis>-<random base62 suffix>". Ids sort
// roughly by creation time and are never reused.
func NewEntryID(now time.Time) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	suffix := toBase62(new(big.Int).SetBytes(buf), suffixLength)
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix[:suffixLength], nil
}
func toBase62(num *big.Int, minLen int) string {
	base := big.NewInt(62)
	result := make([]byte, 0, 11)
	zero := big.NewInt(0)
	temp := new(big.Int).Set(num)
	for temp.Cmp(zero) > 0 {
		mod := new(big.Int)
		temp.DivMod(temp, base, mod)
		result = append(result, base62Chars[mod.Int64()])
	}
	for len(result) < minLen {
		result = append(result, base62Chars[0])
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}
