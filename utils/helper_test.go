package utils

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"owner@demo-commerce.test",
		"a.b+tag@example.co",
		"x_y%z@sub.domain.io",
	}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Fatalf("expected %q to be valid", email)
		}
	}

	invalid := []string{
		"",
		"plainaddress",
		"@no-local-part.com",
		"missing-at-sign.net",
		"trailing@dot.",
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestHashAndComparePassword(t *testing.T) {
	hashed, err := HashPassword("s3cret-passw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(string(hashed), "s3cret-passw0rd"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if err := ComparePassword(string(hashed), "wrong-password"); err == nil {
		t.Fatal("wrong password must not compare equal")
	}
}
