package pricing

import (
	"fmt"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// maxRawInError bounds the raw text echoed back in errors.
const maxRawInError = 200

// ParsingError reports a field that could not be read from raw listing text.
type ParsingError struct {
	Field   string
	Raw     string
	Message string
}

func newParsingError(field, raw, message string) *ParsingError {
	return &ParsingError{Field: field, Raw: util.Truncate(raw, maxRawInError), Message: message}
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("parse %s: %s (raw=%q)", e.Field, e.Message, e.Raw)
}

// NormalizationError reports a quantity that was found but could not be normalized.
type NormalizationError struct {
	Text    string
	Message string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %q: %s", e.Text, e.Message)
}
