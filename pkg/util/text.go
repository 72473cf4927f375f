package util

import (
	"regexp"
	"strings"
)

var (
	// htmlTagPattern matches HTML tags like <span>, </span>, <div>, </div>, etc.
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	// multiSpacePattern matches multiple consecutive whitespace characters
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// CleanText removes HTML remnants and collapses whitespace in text scraped from product cards.
func CleanText(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, `<\/`, `</`)
	s = htmlTagPattern.ReplaceAllString(s, "")

	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	s = multiSpacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanLink fixes escaped URLs (e.g., https:\/\/ -> https://)
func CleanLink(link string) string {
	link = strings.ReplaceAll(link, `\/`, `/`)
	return strings.TrimSpace(link)
}

// Capitalize upper-cases the first letter of s, used for unregistered market ids.
func Capitalize(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
