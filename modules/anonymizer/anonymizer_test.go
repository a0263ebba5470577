package anonymizer

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sensitiveRegexes mirrors the patterns in the compiled rule table, each
// paired with the fixed mask its rule writes, used here only to assert the
// redaction property independently of the replacement implementation
// (testable property 1 in spec.md §8). The email and UUID masks are
// themselves an email address and a UUID, so after redaction a pattern may
// still match its own mask and nothing else.
var sensitiveRegexes = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "user@example.com"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "XXX-XX-XXXX"},
	{regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`), "XXXX-XXXX-XXXX-XXXX"},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), "XXX.XXX.XXX.XXX"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "00000000-0000-0000-0000-000000000000"},
}

func TestString_RedactsEmail(t *testing.T) {
	a := New()
	out := a.String("contact alice@example.com for details")
	assert.Equal(t, "contact user@example.com for details", out)
}

func TestString_RedactsSSN(t *testing.T) {
	a := New()
	assert.Equal(t, "ssn=XXX-XX-XXXX", a.String("ssn=123-45-6789"))
}

func TestString_RedactsCreditCard(t *testing.T) {
	a := New()
	assert.Equal(t, "card XXXX-XXXX-XXXX-XXXX on file", a.String("card 4111-1111-1111-1111 on file"))
}

func TestString_RedactsIPv4(t *testing.T) {
	a := New()
	assert.Equal(t, "host.ip=XXX.XXX.XXX.XXX", a.String("host.ip=10.0.0.5"))
}

func TestString_RedactsUserID(t *testing.T) {
	a := New()
	assert.Equal(t, "owner=user-XXXXX", a.String("owner=user-48213"))
}

func TestString_RedactsUUIDBeforeLongToken(t *testing.T) {
	a := New()
	out := a.String("trace_id=550e8400-e29b-41d4-a716-446655440000")
	require.Contains(t, out, "00000000-0000-0000-0000-000000000000")
	assert.NotContains(t, out, "REDACTED_TOKEN")
}

func TestString_RedactsLongToken(t *testing.T) {
	a := New()
	out := a.String("authz=abcdefghijklmnopqrstuvwxyz0123456789")
	assert.Contains(t, out, "REDACTED_TOKEN")
}

func TestString_TotalityProperty(t *testing.T) {
	a := New()
	inputs := []string{
		"user alice@example.com with ip 10.1.2.3 and ssn 123-45-6789",
		"card 4111 1111 1111 1111 for user-9981 trace 550e8400-e29b-41d4-a716-446655440000",
		"plain text with no sensitive content",
		"",
	}
	for _, in := range inputs {
		out := a.String(in)
		for _, s := range sensitiveRegexes {
			for _, m := range s.re.FindAllString(out, -1) {
				assert.Equal(t, s.mask, m, "regex %s still matches %q", s.re.String(), out)
			}
		}
	}
}

func TestStringMap_LeavesKeysAlone(t *testing.T) {
	a := New()
	in := map[string]string{"user.email": "alice@example.com"}
	out := a.StringMap(in)
	assert.Contains(t, out, "user.email")
	assert.Equal(t, "user@example.com", out["user.email"])
}

func TestStringMap_Nil(t *testing.T) {
	a := New()
	assert.Nil(t, a.StringMap(nil))
}
