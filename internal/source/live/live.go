// Package live adapts HTTP-backed clients to the source contract. Live
// sources register under the same names as their simulated counterparts so
// strategies do not change when they are swapped in.
package live

import (
	"errors"
	"strings"
	"unicode"

	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/google"
	"github.com/sells-group/enrich-cli/pkg/opencorporates"
)

// classifyHTTP marks API errors with retryable status codes as transient so
// the invoker and dead-letter queue treat them accordingly.
func classifyHTTP(err error) error {
	var oc *opencorporates.APIError
	if errors.As(err, &oc) {
		return resilience.FromHTTPStatus(err, oc.StatusCode)
	}
	var ge *google.APIError
	if errors.As(err, &ge) {
		return resilience.FromHTTPStatus(err, ge.StatusCode)
	}
	return err
}

var legalSuffixes = []string{"LLC", "L L C", "INC", "INCORPORATED", "CORP", "CORPORATION", "CO", "LTD", "LP", "LLP", "PLLC", "COMPANY"}

// normalizeName upper-cases name, drops punctuation and a trailing legal
// designation so "Golden Chick, L.L.C." and "GOLDEN CHICK LLC" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '-' || r == '&':
			b.WriteByte(' ')
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	for _, suf := range legalSuffixes {
		if trimmed, ok := strings.CutSuffix(s, " "+suf); ok {
			return strings.TrimSpace(trimmed)
		}
	}
	return s
}
