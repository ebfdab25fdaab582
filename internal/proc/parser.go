package proc

import (
	"strconv"
	"strings"
)

// errorSignatures are the substrings that flag a subprocess output line as an
// error. False positives only trigger a reconnect, which is safe; false
// negatives delay detection until the process exits.
var errorSignatures = []string{
	"error",
	"failed",
	"unable to",
	"connection refused",
	"lost connection",
	"an error occurred",
}

// IsErrorLine reports whether a subprocess output line indicates an error.
func IsErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, sig := range errorSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// DetectPortConflict extracts the conflicting port from a bind failure line.
//
// Known producer formats:
//
//	kubectl: "listen tcp4 127.0.0.1:8080: bind: address already in use"
//	socat:   "... E bind(5, {AF=2 0.0.0.0:9090}, 16): Address already in use"
//
// It returns (0, false) when the line is not a bind conflict, or when the
// conflict phrase matched but no port could be extracted; the caller treats
// the latter as a generic error.
func DetectPortConflict(line string) (int, bool) {
	if !strings.Contains(strings.ToLower(line), "address already in use") {
		return 0, false
	}

	// Scan the segments after each ":" for a leading port number. Values of
	// 255 or below are skipped so IP octets never match.
	parts := strings.Split(line, ":")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		digits := leadingDigits(part)
		if digits == "" {
			continue
		}
		port, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if port > 255 && port <= 65535 {
			return port, true
		}
	}
	return 0, false
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
