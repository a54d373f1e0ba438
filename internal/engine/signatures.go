package engine

import (
	"errors"
	"strings"

	"github.com/jormala/tablewatch/internal/meta"
)

// Classification signatures (version 1).
//
// The export tool reports failures as free text on stderr; there is no
// structured error payload to parse. Matching phrases is inherently fragile,
// so every signature lives here and nowhere else, and anything unmatched is
// conservatively a fatal failure rather than a guessed kind.

// emptyTableSignatures match the known defect where the export tool fails
// on a table with zero rows instead of producing an empty file.
var emptyTableSignatures = []string{
	"cannot export table without rows",
	"no rows to export",
}

// rateLimitSignatures match 429-style throttling reported by the tool.
var rateLimitSignatures = []string{
	"too many requests",
	"rate limit exceeded",
	"http 429",
}

// serverErrorSignatures match 5xx-style upstream failures reported by the tool.
var serverErrorSignatures = []string{
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"http 500",
	"http 502",
	"http 503",
	"http 504",
}

// classifyToolOutput maps the combined stdout+stderr text of a failed tool
// invocation to an ErrorKind. The defect signature wins over the transient
// ones because the workaround must fire even when the tool also echoes the
// upstream status line.
func classifyToolOutput(output string) ErrorKind {
	text := strings.ToLower(output)

	if matchesAny(text, emptyTableSignatures) {
		return KindEmptyTableDefect
	}

	if matchesAny(text, rateLimitSignatures) {
		return KindRateLimited
	}

	if matchesAny(text, serverErrorSignatures) {
		return KindTransientServer
	}

	return KindFatal
}

func matchesAny(text string, signatures []string) bool {
	for _, sig := range signatures {
		if strings.Contains(text, sig) {
			return true
		}
	}

	return false
}

// classifyMetaError maps a metadata client error to an ErrorKind. Throttling
// and server errors are transient; everything else (network failure, auth,
// missing table) means the signal could not be determined this cycle.
func classifyMetaError(err error) ErrorKind {
	switch {
	case errors.Is(err, meta.ErrThrottled):
		return KindRateLimited
	case errors.Is(err, meta.ErrServerError):
		return KindTransientServer
	default:
		return KindSignalUnavailable
	}
}
