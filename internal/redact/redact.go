// Package redact scrubs personal data and credentials out of log lines.
// Log output must never carry the text being anonymized.
package redact

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	bearerRe     = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyRe     = regexp.MustCompile(`(?i)((?:api[_-]?key|token|password)\s*[:=]\s*)([^\s,;]+)`)
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ibanRe       = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){2,7}(?:\s?[A-Z0-9]{1,4})?\b`)
	fiscalCodeRe = regexp.MustCompile(`(?i)\b[A-Z]{6}\d{2}[A-EHLMPR-T]\d{2}[A-Z]\d{3}[A-Z]\b`)
	cardRe       = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	phoneRe      = regexp.MustCompile(`(?:\+\d{1,3}[ .]?)?\b\d{3}[ .]?\d{3,4}[ .]?\d{3,4}\b`)
	urlRe        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	textFieldRe  = regexp.MustCompile(`(?i)("?(?:text|word|highlighted|anonymized)"?\s*[:=]\s*)("(?:[^"\\]|\\.)*"|\S+)`)
)

// String redacts personal data and secrets from free-form strings.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = textFieldRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	out = emailRe.ReplaceAllString(out, "[EMAIL]")
	out = ibanRe.ReplaceAllString(out, "[IBAN]")
	out = fiscalCodeRe.ReplaceAllString(out, "[CODICE_FISCALE]")
	out = cardRe.ReplaceAllString(out, "[NUMERO_CARTA]")
	out = phoneRe.ReplaceAllString(out, "[NUMERO_TELEFONO]")
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// Any formats the value with %+v and redacts it.
func Any(v any) string {
	return String(fmt.Sprintf("%+v", v))
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a redacted log line.
func Logf(format string, args ...interface{}) {
	log.Print(Sprintf(format, args...))
}

// Fatalf prints a redacted fatal log line.
func Fatalf(format string, args ...interface{}) {
	log.Fatal(Sprintf(format, args...))
}

func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}

	host := u.Host
	if u.User != nil {
		host = u.Hostname()
		if p := u.Port(); p != "" {
			host += ":" + p
		}
	}
	if strings.HasSuffix(trimmed, "/") {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, host)
	}

	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("%s://%s", u.Scheme, host)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, host, base)
}
