// Package id generates identifiers for registry entries created without one.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strconv"
	"time"
)

// TargetPrefix prefixes every generated target id.
const TargetPrefix = "tgt"

var generatedPattern = regexp.MustCompile(`^[a-z]+_[0-9a-f]{8}$`)

// Target returns a new target id such as "tgt_1a2b3c4d".
func Target() string {
	return generate(TargetPrefix)
}

func generate(prefix string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		ts := strconv.FormatInt(time.Now().UnixNano(), 16)
		return prefix + "_" + ts[len(ts)-8:]
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// IsGenerated reports whether s has the shape of an id produced by this package.
func IsGenerated(s string) bool {
	return generatedPattern.MatchString(s)
}
