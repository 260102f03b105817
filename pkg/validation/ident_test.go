package validation

import (
	"testing"
)

func TestValidateIdent(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "tank_42", false},
		{"single char", "a", false},
		{"digits only", "12345", false},
		{"hyphenated", "valve-north-1", false},
		{"mixed case", "Sensor_A1", false},
		{"max length", "a123456789012345678901234567890123456789012345678901234567890123", false},

		// Invalid identifiers - injection attempts
		{"empty", "", true},
		{"key injection pipe", "tank|42", true},
		{"path traversal", "../etc/passwd", true},
		{"newline injection", "tank\n42", true},
		{"spaces", "tank 42", true},
		{"starts with underscore", "_tank", true},
		{"starts with hyphen", "-tank", true},
		{"too long", "a1234567890123456789012345678901234567890123456789012345678901234", true},
		{"unicode", "tank™", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdent(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdent(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdents(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"tank_1", "valve-2", "pit3"}, false},
		{"one invalid", []string{"tank_1", "bad id", "pit3"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdents(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdents(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeIdent(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "tank_42", "tank_42", false},
		{"whitespace trimmed", "  tank_42\n", "tank_42", false},
		{"invalid rejected", "tank 42", "", true},
		{"only whitespace", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeIdent(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeIdent(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeIdent(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
