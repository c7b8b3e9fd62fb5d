// Package redact strips personally identifiable information from report
// text before it is stored or returned to callers: email addresses, phone
// numbers, mail header lines, forwarded-message banners, sign-off blocks,
// and the known sender/recipient names supplied as context.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder tokens inserted in place of redacted substrings.
const (
	EmailPlaceholder     = "[redacted-email]"
	PhonePlaceholder     = "[redacted-phone]"
	SenderPlaceholder    = "[redacted-sender]"
	RecipientPlaceholder = "[redacted-recipient]"
)

// Context carries the known participants of the message being redacted.
// All fields are optional.
type Context struct {
	SenderName      string
	SenderEmail     string
	RecipientNames  []string
	RecipientEmails []string
}

var (
	forwardBannerRe = regexp.MustCompile(`(?im)^[-_ ]*(forwarded message|original message|begin forwarded message)[-_ :]*$`)
	headerLineRe    = regexp.MustCompile(`(?im)^(from|to|cc|bcc|sent|subject|date)\s*:.*$`)
	emailRe         = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// At least 8 digits total so years and percentages stay untouched.
	phoneRe   = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
	signOffRe = regexp.MustCompile(`(?is)\b(best regards|kind regards|warm regards|regards|sincerely|yours (?:truly|faithfully|sincerely)|thanks (?:and|&) regards)[,.!]?\s.{0,180}$`)

	orgKeywords = []string{
		"bank", "capital", "securities", "research", "broking", "brokerage",
		"markets", "institutional", "limited", "ltd", "inc", "llc", "llp",
		"corp", "company", "group", "team", "desk", "advisors",
	}
	personNameRe = regexp.MustCompile(`^[A-Z][a-zA-Z'\-]+(?: [A-Z][a-zA-Z'\-]+){1,3}$`)
)

// Redact removes PII from text. Order matters: header/banner stripping runs
// first so header-line emails are gone before the generic email pass, and
// the sign-off strip runs last so a signature name does not survive inside
// the trailing block.
func Redact(text string, rc Context) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = forwardBannerRe.ReplaceAllString(text, "")
	text = headerLineRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, EmailPlaceholder)
	text = phoneRe.ReplaceAllStringFunc(text, func(m string) string {
		if countDigits(m) < 8 {
			return m
		}
		return PhonePlaceholder
	})

	if rc.SenderEmail != "" {
		text = replaceWholeWord(text, rc.SenderEmail, SenderPlaceholder)
	}
	if IsLikelyPersonName(rc.SenderName) {
		text = replaceWholeWord(text, rc.SenderName, SenderPlaceholder)
	}
	for _, email := range rc.RecipientEmails {
		if email != "" {
			text = replaceWholeWord(text, email, RecipientPlaceholder)
		}
	}
	for _, name := range rc.RecipientNames {
		if IsLikelyPersonName(name) {
			text = replaceWholeWord(text, name, RecipientPlaceholder)
		}
	}

	text = signOffRe.ReplaceAllString(text, "")

	return collapse(text)
}

// IsLikelyPersonName reports whether s looks like a human name: 2-4
// capitalized words, 5-60 characters, letters/spaces/apostrophes/hyphens
// only, and no organization keywords. Used to avoid blanking company or
// desk names that arrive in the recipient list.
func IsLikelyPersonName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 5 || len(s) > 60 {
		return false
	}
	if !personNameRe.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	for _, kw := range orgKeywords {
		for _, word := range strings.Fields(lower) {
			if word == kw {
				return false
			}
		}
	}
	return true
}

// replaceWholeWord replaces case-insensitive whole-word occurrences of
// target with placeholder.
func replaceWholeWord(text, target, placeholder string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return text
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(target) + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, placeholder)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// collapse squeezes runs of spaces/tabs and caps blank lines at one.
func collapse(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

var spaceRunRe = regexp.MustCompile(`[ \t]+`)
