package utils

import "golang.org/x/crypto/bcrypt"

// HashSecret returns a salted bcrypt hash of secret. A non-positive cost
// falls back to bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckSecret compares in constant time. An empty or malformed hash never matches.
func CheckSecret(secret, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
