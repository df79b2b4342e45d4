package utils

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var loc = func() *time.Location {
	l, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*3600)
	}
	return l
}()

func randomUpper(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return s[:n]
}

// OrderNumber returns "DY" + yyMMdd + 6 random upper-case characters.
func OrderNumber(now time.Time) string {
	return "DY" + now.In(loc).Format("060102") + randomUpper(6)
}

func ReferralCode() string {
	return randomUpper(8)
}

func AffiliateSlug() string {
	return strings.ToLower(randomUpper(10))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases, strips Vietnamese diacritics and joins words with '-'.
func Slugify(s string) string {
	s = strings.NewReplacer("đ", "d", "Đ", "D").Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = nonSlug.ReplaceAllString(strings.ToLower(out), "-")
	return strings.Trim(out, "-")
}
