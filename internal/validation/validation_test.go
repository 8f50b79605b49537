package validation

import (
	"testing"
)

func TestIsValidPayee(t *testing.T) {
	tests := []struct {
		payee string
		valid bool
	}{
		{"alice@upi", true},
		{"9876543210@bank", true},
		{"first.last@wallet", true},
		{"a_b-c@pay2", true},

		// Invalid cases
		{"alice", false},          // No provider
		{"@upi", false},           // No local part
		{"a@upi", false},          // Local part too short
		{"alice@", false},         // No provider
		{"alice@1bank", false},    // Provider starts with digit
		{"alice bob@upi", false},  // Space
		{"alice@upi@bank", false}, // Double handle
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidPayee(tc.payee)
		if result != tc.valid {
			t.Errorf("IsValidPayee(%q) = %v, want %v", tc.payee, result, tc.valid)
		}
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"user-1", true},
		{"u_42", true},
		{"ABC123", true},

		{"", false},
		{"user 1", false},
		{"user@1", false},
	}

	for _, tc := range tests {
		if got := IsValidUserID(tc.id); got != tc.valid {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestSanitizePayee(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"alice@upi", "alice@upi"},
		{"ALICE@UPI", "alice@upi"},
		{"  alice@upi  ", "alice@upi"},
	}

	for _, tc := range tests {
		result := SanitizePayee(tc.input)
		if result != tc.expected {
			t.Errorf("SanitizePayee(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("userId", "user-1"),
		ValidPayee("payee", "alice@upi"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("userId", ""),
		ValidPayee("payee", "invalid"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestPositiveAmount(t *testing.T) {
	if err := PositiveAmount("amount", 100)(); err != nil {
		t.Error("positive amount should pass")
	}
	if err := PositiveAmount("amount", 0)(); err == nil {
		t.Error("zero amount should fail")
	}
	if err := PositiveAmount("amount", -5)(); err == nil {
		t.Error("negative amount should fail")
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
