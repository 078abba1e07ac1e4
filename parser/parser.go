// Package parser holds pure normalisers: ISBN conversion, search-title cleanup
// and extraction helpers for loosely typed upstream JSON.
package parser

import (
	"strings"
	"unicode"
)

// ISBN is the result of NormalizeISBN. Either form may be empty; callers must
// check Valid before using them.
type ISBN struct {
	ISBN10 string `json:"isbn10,omitempty"`
	ISBN13 string `json:"isbn13,omitempty"`
	Valid  bool   `json:"is_valid"`
}

// Preferred returns the ISBN-13 when known, otherwise the ISBN-10.
func (i ISBN) Preferred() string {
	if i.ISBN13 != "" {
		return i.ISBN13
	}
	return i.ISBN10
}

// NormalizeISBN strips dashes and whitespace, fixes the 14-digit scanner
// error (a stray trailing zero) and derives both ISBN forms. It never fails;
// unusable input yields a zero ISBN with Valid=false.
func NormalizeISBN(raw string) ISBN {
	cleaned := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if len(cleaned) == 14 && strings.HasSuffix(cleaned, "0") {
		cleaned = cleaned[:13]
	}

	switch len(cleaned) {
	case 10:
		cleaned = strings.ToUpper(cleaned)
		if !allDigits(cleaned[:9]) {
			return ISBN{}
		}
		if last := cleaned[9]; last != 'X' && !isDigit(last) {
			return ISBN{}
		}
		return ISBN{ISBN10: cleaned, ISBN13: ISBN10To13(cleaned), Valid: true}
	case 13:
		if !allDigits(cleaned) {
			return ISBN{}
		}
		return ISBN{ISBN10: ISBN13To10(cleaned), ISBN13: cleaned, Valid: true}
	default:
		return ISBN{}
	}
}

// ISBN10To13 prefixes 978 to the first nine digits and appends the
// modulus-10 check digit (weights 1,3 alternating). Returns "" for input
// that is not ten characters long.
func ISBN10To13(isbn10 string) string {
	if len(isbn10) != 10 || !allDigits(isbn10[:9]) {
		return ""
	}
	core := "978" + isbn10[:9]
	sum := 0
	for i := 0; i < len(core); i++ {
		d := int(core[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return core + string(rune('0'+check))
}

// ISBN13To10 converts a 978-prefixed ISBN-13 to ISBN-10 using the
// modulus-11 check digit (weights 10 down to 2, remainder 10 is "X").
// 979-prefixed codes have no ISBN-10 form and yield "".
func ISBN13To10(isbn13 string) string {
	if len(isbn13) != 13 || !allDigits(isbn13) || !strings.HasPrefix(isbn13, "978") {
		return ""
	}
	core := isbn13[3:12]
	sum := 0
	for i := 0; i < len(core); i++ {
		sum += int(core[i]-'0') * (10 - i)
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return core + "X"
	}
	return core + string(rune('0'+check))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
