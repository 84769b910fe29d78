package app

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet drops characters that are easy to misread (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 10

// generateConfirmationCode draws codeLength characters uniformly from
// codeAlphabet using crypto/rand.
func generateConfirmationCode() (string, error) {
	out := make([]byte, codeLength)
	n := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[v.Int64()]
	}
	return string(out), nil
}
