package service

import (
	"strings"

	pkgerrors "codejudge/pkg/errors"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
	maxPasswordLen = 128
)

// Usernames start with an ASCII letter and continue with letters, digits, '_', '.' or '-'.
func validateUsername(username string) error {
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return pkgerrors.New(pkgerrors.InvalidUsername)
	}
	for i := 0; i < len(username); i++ {
		b := username[i]
		switch {
		case isASCIILetter(b):
		case i > 0 && (isASCIIDigit(b) || strings.IndexByte("_.-", b) >= 0):
		default:
			return pkgerrors.New(pkgerrors.InvalidUsername)
		}
	}
	return nil
}

// Passwords are visible ASCII only and need a letter and a digit.
func validatePassword(password string) error {
	if len(password) > maxPasswordLen {
		return pkgerrors.New(pkgerrors.InvalidPassword)
	}
	var letter, digit bool
	for i := 0; i < len(password); i++ {
		b := password[i]
		if b < '!' || b > '~' {
			return pkgerrors.New(pkgerrors.InvalidPassword)
		}
		letter = letter || isASCIILetter(b)
		digit = digit || isASCIIDigit(b)
	}
	if len(password) < minPasswordLen || !letter || !digit {
		return pkgerrors.New(pkgerrors.PasswordTooWeak)
	}
	return nil
}

// Login only bounds the length; older accounts may predate the strength rules.
func validateLoginPassword(password string) error {
	if password == "" || len(password) > maxPasswordLen {
		return pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	return nil
}

func isASCIILetter(b byte) bool { return (b|0x20) >= 'a' && (b|0x20) <= 'z' }

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }
