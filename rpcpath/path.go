// Package rpcpath validates dotted procedure paths such as "user.get".
// Pure; no I/O.
package rpcpath

import (
	"github.com/tomtom215/rpckit/rpcerr"
)

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentChar(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// Validate returns the normalized path (identity if already normalized) or
// a *rpcerr.ValidationError naming the offending segment.
func Validate(path string) (string, error) {
	if path == "" {
		return "", invalid(path, "", "path must not be empty")
	}

	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			if err := validateSegment(path, seg); err != nil {
				return "", err
			}
			start = i + 1
		}
	}
	return path, nil
}

func validateSegment(path, seg string) error {
	if seg == "" {
		return invalid(path, seg, "empty segment (leading, trailing, or adjacent dot)")
	}
	if !isIdentStart(seg[0]) {
		return invalid(path, seg, "segment must start with a letter or underscore")
	}
	for i := 1; i < len(seg); i++ {
		if !isIdentChar(seg[i]) {
			return invalid(path, seg, "segment contains an invalid character")
		}
	}
	return nil
}

func invalid(path, segment, message string) error {
	return &rpcerr.ValidationError{
		Path: path,
		Issues: []rpcerr.ValidationIssue{
			{Path: segment, Message: message, Code: "INVALID_PATH"},
		},
	}
}
