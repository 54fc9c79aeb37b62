package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sebuszqo/PaymentMethods/internal/payment/errors"
)

// Expiry is a card expiry month/year. Year is always held as a four digit year.
type Expiry struct {
	Month int
	Year  int
}

func NewExpiry(month, year int) (Expiry, error) {
	if month < 1 || month > 12 {
		return Expiry{}, errors.NewValidationError("Expiry month must be between 1 and 12")
	}
	if year >= 0 && year < 100 {
		year += 2000
	}
	if year < 2000 || year > 2099 {
		return Expiry{}, errors.NewValidationError("Expiry year is out of range")
	}
	return Expiry{Month: month, Year: year}, nil
}

// ParseExpiry accepts "M/YY", "MM/YY" and "MM/YYYY".
func ParseExpiry(s string) (Expiry, error) {
	monthPart, yearPart, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Expiry{}, errors.NewValidationError("Expiry must be formatted as MM/YY")
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil {
		return Expiry{}, errors.NewValidationError("Expiry month must be a number")
	}
	if len(yearPart) != 2 && len(yearPart) != 4 {
		return Expiry{}, errors.NewValidationError("Expiry year must have 2 or 4 digits")
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Expiry{}, errors.NewValidationError("Expiry year must be a number")
	}
	return NewExpiry(month, year)
}

// String renders MM/YY.
func (e Expiry) String() string {
	return fmt.Sprintf("%02d/%02d", e.Month, e.Year%100)
}

// StoreFormat renders M/YY, the format of the expiry column.
func (e Expiry) StoreFormat() string {
	return fmt.Sprintf("%d/%02d", e.Month, e.Year%100)
}

func (e Expiry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Expiry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseExpiry(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e Expiry) Value() (driver.Value, error) {
	return e.StoreFormat(), nil
}

func (e *Expiry) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Expiry", src)
	}
	parsed, err := ParseExpiry(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
