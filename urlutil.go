// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeRawQuery percent-encodes characters that are invalid in a URL
// query string (spaces, '#', control characters) while preserving
// everything that is valid, including literal '+' signs and existing
// '%XX' sequences. It operates directly on the raw query string without
// a decode/re-encode round-trip, so '+' is never confused with space.
func NormalizeRawQuery(raw string) string {
	var buf strings.Builder
	buf.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '%' && i+2 < len(raw) && isHexChar(raw[i+1]) && isHexChar(raw[i+2]):
			// already percent-encoded, preserve as-is
			buf.WriteByte(c)
			buf.WriteByte(raw[i+1])
			buf.WriteByte(raw[i+2])
			i += 2
		case c == ' ':
			buf.WriteString("%20")
		case shouldPercentEncode(c):
			fmt.Fprintf(&buf, "%%%02X", c)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}

// NormalizeURL pre-encodes invalid characters in the query portion of a
// raw URL string, then parses it. Hrefs scraped out of live DOMs often
// carry unencoded '#', '+', or spaces in query values; url.Parse treats
// a bare '#' as a fragment separator and silently drops the rest of the
// query, so the query portion is normalized before parsing.
//
// Returns the original string unchanged if parsing fails.
func NormalizeURL(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		rawURL = rawURL[:idx] + "?" + NormalizeRawQuery(rawURL[idx+1:])
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.String()
}

// ResolveHref resolves an href attribute against the page it was
// scraped from: absolute URLs pass through, protocol-relative URLs
// inherit the base scheme, and relative paths resolve against the base.
func ResolveHref(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	ref, err := url.Parse(NormalizeURL(href))
	if err != nil {
		return "", fmt.Errorf("parsing href %q: %w", href, err)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", base, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func isHexChar(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// shouldPercentEncode reports whether c must be percent-encoded in a
// URL query string. Unreserved characters, sub-delimiters, and the
// query-specific delimiters '+', '&', '=', '/', '?' pass through.
func shouldPercentEncode(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return false
	}
	switch c {
	case '-', '.', '_', '~':
		return false
	case ':', '@', '!', '$', '\'', '(', ')', '*', ',', ';':
		return false
	case '+', '&', '=':
		return false
	case '/', '?':
		return false
	}
	return true
}
