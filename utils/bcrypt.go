package utils

import "golang.org/x/crypto/bcrypt"

// User passwords only. Session tokens are opaque UUIDs and never hashed here.
const passwordHashCost = bcrypt.DefaultCost

func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), passwordHashCost)
}

func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
