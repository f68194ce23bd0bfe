// Package redact scrubs credentials from text before it is logged or
// returned to a client. Errors from the database driver and the remote API
// can echo connection strings, bearer tokens and keys; Error strips them.
package redact

import "regexp"

// Placeholders substituted for redacted content.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	SQLPlaceholder        = "[REDACTED_SQL]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order; earlier rules take precedence over later ones.
var rules = []rule{
	// user:password in connection URLs, keeping the scheme
	{regexp.MustCompile(`(?i)\b((?:postgres(?:ql)?|pgx)://)[^@\s/]+@`), "${1}" + CredentialPlaceholder + "@"},
	{regexp.MustCompile(`(?i)\bpassword=\S+`), "password=" + CredentialPlaceholder},
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9_\-.~+/=]+`), "Bearer " + TokenPlaceholder},
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), TokenPlaceholder},
	{regexp.MustCompile(`\bkey_[A-Za-z0-9]{16,}\b`), KeyPlaceholder},
	{
		regexp.MustCompile(`(?i)\b(api[_-]?key|secret|device[_-]?token|token)(["'\s:=]+)[A-Za-z0-9_\-.~+/:]{8,}`),
		"${1}${2}" + KeyPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)\b(?:SELECT|INSERT INTO|UPDATE|DELETE FROM)\b[^;]*?\b(?:FROM|VALUES|SET|WHERE)\b[^;]*`),
		SQLPlaceholder,
	},
}

// String returns s with every credential-like fragment replaced.
func String(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error returns the redacted text of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
