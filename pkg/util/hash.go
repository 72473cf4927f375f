package util

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// HashOfferKey creates an MD5 hash from the market, product URL and title, used as the offer document id.
func HashOfferKey(marketID, url, title string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSpace(strings.ToLower(marketID)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToLower(url)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToLower(title)))
	return hashString(builder.String())
}

// HashString returns the MD5 hash of an arbitrary string.
func HashString(input string) string {
	return hashString(strings.TrimSpace(strings.ToLower(input)))
}

func hashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
