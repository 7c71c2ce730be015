package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	// Phone number validation - supports E.164 format and common formats
	phoneRegex = regexp.MustCompile(`^(\+?[1-9]\d{0,14}|\d{10,15})$`)

	// Email validation uses Go's mail.ParseAddress
	// Name validation - allows letters, spaces, hyphens, apostrophes
	nameRegex = regexp.MustCompile(`^[\p{L}\s\-'\.]{2,100}$`)

	// Address validation patterns
	zipCodeRegex = regexp.MustCompile(`^\d{5}(-\d{4})?$`) // US ZIP codes
	stateRegex   = regexp.MustCompile(`^[A-Z]{2}$`)       // US state codes

	// Service type slugs, e.g. "roofing", "hvac-repair"
	serviceTypeRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	// Normalize email
	email = strings.TrimSpace(strings.ToLower(email))

	// Parse email address
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	// Additional length check
	if len(email) > 255 {
		return fmt.Errorf("email too long (max 255 characters)")
	}

	return nil
}

// ValidatePhoneNumber validates phone number format
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number cannot be empty")
	}

	// Remove common formatting characters
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, phone)

	if !phoneRegex.MatchString(cleaned) {
		return fmt.Errorf("invalid phone number format")
	}

	// Check minimum length
	if len(cleaned) < 10 {
		return fmt.Errorf("phone number too short")
	}

	return nil
}

// ValidateName validates person name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	name = strings.TrimSpace(name)

	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name format")
	}

	if len(name) < 2 {
		return fmt.Errorf("name too short (min 2 characters)")
	}

	if len(name) > 100 {
		return fmt.Errorf("name too long (max 100 characters)")
	}

	return nil
}

// ValidateZipCode validates a US ZIP code (5 digit or ZIP+4)
func ValidateZipCode(zipCode string) error {
	if zipCode == "" {
		return fmt.Errorf("zip code cannot be empty")
	}

	if !zipCodeRegex.MatchString(zipCode) {
		return fmt.Errorf("invalid US ZIP code format")
	}

	return nil
}

// ValidateState validates a two-letter US state code
func ValidateState(state string) error {
	if state == "" {
		return fmt.Errorf("state cannot be empty")
	}

	if !stateRegex.MatchString(strings.ToUpper(state)) {
		return fmt.Errorf("invalid US state code")
	}

	return nil
}

// ValidateServiceType validates a service type slug like "roofing" or
// "hvac-repair"
func ValidateServiceType(serviceType string) error {
	if serviceType == "" {
		return fmt.Errorf("service type cannot be empty")
	}

	if !serviceTypeRegex.MatchString(serviceType) {
		return fmt.Errorf("invalid service type format")
	}

	if len(serviceType) > 64 {
		return fmt.Errorf("service type too long (max 64 characters)")
	}

	return nil
}

// ValidateAddress validates address components
func ValidateAddress(street, city, state, zipCode, country string) error {
	if street == "" || city == "" || state == "" || zipCode == "" || country == "" {
		return fmt.Errorf("all address fields are required")
	}

	// Validate US addresses (can be extended for other countries)
	if strings.ToUpper(country) == "US" || strings.ToUpper(country) == "USA" {
		if err := ValidateState(state); err != nil {
			return err
		}

		if err := ValidateZipCode(zipCode); err != nil {
			return err
		}
	}

	// General length checks
	if len(street) > 200 {
		return fmt.Errorf("street address too long (max 200 characters)")
	}

	if len(city) > 100 {
		return fmt.Errorf("city name too long (max 100 characters)")
	}

	return nil
}
