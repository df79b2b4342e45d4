package utils

import (
	"regexp"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)
	tok, exp, err := ti.GenerateToken(42, "a@b.vn", "AGENT")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expiry should be in the future")
	}

	claims, err := ti.ParseToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "a@b.vn" || claims.Role != "AGENT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := NewTokenIssuer("other", time.Hour).ParseToken(tok); err == nil {
		t.Fatal("token signed with another secret must fail")
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	ti := NewTokenIssuer("secret", -time.Minute)
	tok, _, err := ti.GenerateToken(1, "a@b.vn", "ADMIN")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ti.ParseToken(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestOrderNumberFormat(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, loc)
	n := OrderNumber(now)
	if !regexp.MustCompile(`^DY240309[0-9A-F]{6}$`).MatchString(n) {
		t.Fatalf("unexpected order number %q", n)
	}
	if OrderNumber(now) == n {
		t.Fatal("order numbers should differ")
	}
}

func TestReferralCode(t *testing.T) {
	if c := ReferralCode(); !regexp.MustCompile(`^[0-9A-F]{8}$`).MatchString(c) {
		t.Fatalf("unexpected referral code %q", c)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Cao Đông Trùng Hạ Thảo":   "cao-dong-trung-ha-thao",
		"  Trà  thảo mộc -- 100g ": "tra-thao-moc-100g",
		"Nhân sâm & Linh chi!":     "nhan-sam-linh-chi",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
