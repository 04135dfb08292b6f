package library

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

/* Checks the dates of a borrowing against today. The expected return date can not be in the past,
and an actual return date, when given, must be today. */
func ValidateReturnWindow(expectedReturnDate time.Time, actualReturnDate *time.Time, today time.Time) error {
	today = Today(today)
	if Today(expectedReturnDate).Before(today) {
		return NewValidationError(CodeReturnDateInvalid, "expected_return_date",
			fmt.Sprintf("%s can't be any sooner than today.", expectedReturnDate.Format(dateLayout)))
	}
	return ValidateActualReturnDate(actualReturnDate, today)
}

/* Checks that a return date, when given, is exactly today. */
func ValidateActualReturnDate(actualReturnDate *time.Time, today time.Time) error {
	if actualReturnDate == nil {
		return nil
	}
	if !Today(*actualReturnDate).Equal(Today(today)) {
		return NewValidationError(CodeReturnDateInvalid, "actual_return_date",
			fmt.Sprintf("%s must be today's date.", actualReturnDate.Format(dateLayout)))
	}
	return nil
}

/* Fails when there is no copy of the book left to borrow. */
func ValidateInventoryAvailable(bookInventory int) error {
	if bookInventory <= 0 {
		return NewValidationError(CodeInventoryExhausted, "book", "this book is not available: inventory is 0.")
	}
	return nil
}

func ValidateBook(b Book) error {
	title := strings.TrimSpace(b.Title)
	if title == "" {
		return NewValidationError(CodeInvalidField, "title", "this field may not be blank.")
	}
	if utf8.RuneCountInString(b.Title) > TitleMaxLength {
		return NewValidationError(CodeInvalidField, "title", fmt.Sprintf("ensure this field has no more than %d characters.", TitleMaxLength))
	}
	if !b.Cover.Valid() {
		return NewValidationError(CodeInvalidField, "cover", fmt.Sprintf("%q is not a valid choice.", string(b.Cover)))
	}
	if b.Inventory < 0 {
		return NewValidationError(CodeInvalidField, "inventory", "ensure this value is greater than or equal to 0.")
	}
	return validateDailyFee(b.DailyFee)
}

func validateDailyFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return NewValidationError(CodeInvalidField, "daily_fee", "ensure this value is greater than or equal to 0.")
	}
	if fee.GreaterThan(DailyFeeMax) {
		return NewValidationError(CodeInvalidField, "daily_fee", "ensure that there are no more than 5 digits in total.")
	}
	if !fee.Equal(fee.Truncate(2)) {
		return NewValidationError(CodeInvalidField, "daily_fee", "ensure that there are no more than 2 decimal places.")
	}
	return nil
}

func ValidateAuthor(a Author) error {
	fields := []struct{ name, value string }{
		{"first_name", a.FirstName},
		{"last_name", a.LastName},
	}
	for _, f := range fields {
		field, value := f.name, f.value
		if strings.TrimSpace(value) == "" {
			return NewValidationError(CodeInvalidField, field, "this field may not be blank.")
		}
		if utf8.RuneCountInString(value) > AuthorNameMaxLength {
			return NewValidationError(CodeInvalidField, field, fmt.Sprintf("ensure this field has no more than %d characters.", AuthorNameMaxLength))
		}
	}
	return nil
}
