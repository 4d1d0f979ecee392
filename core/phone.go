package core

import (
	"github.com/nyaruka/phonenumbers"
	"github.com/pkg/errors"
)

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// NormalizePhone parses number (national numbers are read in region) and formats it as E.164.
func NormalizePhone(number, region string) (string, error) {
	number = CleanString(number)
	if number == "" {
		return "", ErrInvalidPhoneNumber
	}
	num, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", ErrInvalidPhoneNumber
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
