package config

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldError attributes a validation failure to one configuration option.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigurationError is returned before any network activity when the
// lookup options cannot be used. It is never worth retrying.
type ConfigurationError struct {
	Fields []FieldError
}

func (e *ConfigurationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "config: invalid lookup options"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "config: invalid lookup options: " + strings.Join(parts, "; ")
}

// ValidateLookupOptions reports every field problem in the candidate options.
// An empty result means the options are usable.
func ValidateLookupOptions(opts LookupOptions) []FieldError {
	errs := ValidateAPIKey(opts)
	if opts.DomainBlocklistRegex != "" {
		if _, err := regexp.Compile("(?i)" + opts.DomainBlocklistRegex); err != nil {
			errs = append(errs, FieldError{
				Field:   "domainBlocklistRegex",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}
	return errs
}

// ValidateAPIKey reports only the apiKey problem, leaving the pattern to be
// checked where it is compiled.
func ValidateAPIKey(opts LookupOptions) []FieldError {
	if strings.TrimSpace(opts.APIKey) == "" {
		return []FieldError{{Field: "apiKey", Message: "You must provide a valid API key"}}
	}
	return nil
}
