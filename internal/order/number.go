package order

import (
	"math/rand"
	"strings"
	"time"
)

// Alphabet without easily confused characters (O/0, I/1).
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber generates an order number like CNF-20260901-AB3K9X2M4T.
func NewNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("CNF-")
	b.WriteString(now.UTC().Format("20060102"))
	b.WriteByte('-')
	for i := 0; i < 10; i++ {
		b.WriteByte(numberAlphabet[rand.Intn(len(numberAlphabet))])
	}
	return b.String()
}
