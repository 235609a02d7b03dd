package utils

import (
	"testing"

	"refpay/internal/constants"
)

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+79161234567", "+79161234567", false},
		{"89161234567", "+79161234567", false},
		{"79161234567", "+79161234567", false},
		{"9161234567", "+79161234567", false},
		{"8 (916) 123-45-67", "+79161234567", false},
		{"12345", "", true},
		{"+19161234567", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ValidatePhoneNumber(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: ожидалась ошибка, получено %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q: ожидалось %q, получено %q", c.in, c.want, got)
		}
	}
}

func TestIsRoleOrHigher(t *testing.T) {
	if !IsRoleOrHigher(constants.ROLE_ADMIN, constants.ROLE_USER) {
		t.Error("admin должен проходить проверку user")
	}
	if IsRoleOrHigher(constants.ROLE_USER, constants.ROLE_ADMIN) {
		t.Error("user не должен проходить проверку admin")
	}
	if IsRoleOrHigher("ghost", constants.ROLE_USER) {
		t.Error("неизвестная роль не должна проходить проверку")
	}
}

func TestGenerateReferralCode(t *testing.T) {
	code := GenerateReferralCode()
	if len(code) != 12 {
		t.Fatalf("ожидалось 12 символов, получено %d (%q)", len(code), code)
	}
	if code == GenerateReferralCode() {
		t.Fatal("два вызова вернули одинаковый код")
	}
}

func TestGenerateReferralLink(t *testing.T) {
	link, err := GenerateReferralLink("https://example.com/signup", "abc123def456")
	if err != nil {
		t.Fatalf("GenerateReferralLink: %v", err)
	}
	if link != "https://example.com/signup?ref=abc123def456" {
		t.Fatalf("неожиданная ссылка: %q", link)
	}

	if _, err := GenerateReferralLink("", "abc123def456"); err == nil {
		t.Fatal("ожидалась ошибка для пустого linkBase")
	}
}
