package utils

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// adminPasswordChars is the alphabet for generated moderator passwords:
// uppercase letters and digits, easy to read out during a live session.
const adminPasswordChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAdminPassword returns a random moderator password of length n.
func GenerateAdminPassword(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(adminPasswordChars)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			panic(err)
		}
		out[i] = adminPasswordChars[idx.Int64()]
	}
	return string(out)
}

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
