// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
)

// IsValidPayPalEmail проверяет, что адрес назначения выплаты синтаксически корректен.
func IsValidPayPalEmail(email string) bool {
	if email == "" {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}

	// Адрес с display name ("Имя <a@b.com>") не принимается как назначение выплаты.
	if addr.Address != email {
		return false
	}

	at := strings.LastIndex(email, "@")
	if at < 1 {
		return false
	}

	host := email[at+1:]
	return strings.Contains(host, ".")
}
