package domain

import (
	"testing"
	"time"
)

func TestLoaderError(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		message     string
		details     string
		loadBatchID string
	}{
		{
			name:        "malformed input",
			code:        ErrInputMalformed,
			message:     "unexpected column count",
			details:     "expected at least 8 columns, got 6",
			loadBatchID: "batch-123",
		},
		{
			name:        "store transient",
			code:        ErrStoreTransient,
			message:     "connection reset",
			details:     "context deadline exceeded",
			loadBatchID: "batch-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLoaderError(tt.code, tt.message, tt.details, tt.loadBatchID)

			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("expected details %s, got %s", tt.details, err.Details)
			}
			if err.LoadBatchID != tt.loadBatchID {
				t.Errorf("expected load batch id %s, got %s", tt.loadBatchID, err.LoadBatchID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("timestamp should be recent, got %v", err.Timestamp)
			}

			expected := tt.code + ": " + tt.message
			if err.Error() != expected {
				t.Errorf("expected error string %s, got %s", expected, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		message string
		value   interface{}
	}{
		{
			name:    "dosage out of range",
			field:   "dosage",
			message: "must be within [0,2]",
			value:   2.4,
		},
		{
			name:    "negative position",
			field:   "pos",
			message: "must be positive",
			value:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)

			if err.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, err.Field)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.Value != tt.value {
				t.Errorf("expected value %v, got %v", tt.value, err.Value)
			}

			expected := "validation error for field '" + tt.field + "': " + tt.message
			if err.Error() != expected {
				t.Errorf("expected error string %s, got %s", expected, err.Error())
			}
		})
	}
}

func TestErrorConstants(t *testing.T) {
	constants := map[string]string{
		"ErrInputMalformed":      ErrInputMalformed,
		"ErrSchemaMismatch":      ErrSchemaMismatch,
		"ErrStoreTransient":      ErrStoreTransient,
		"ErrConstraintViolation": ErrConstraintViolation,
		"ErrPHIEncryption":       ErrPHIEncryption,
		"ErrCancelled":           ErrCancelled,
		"ErrAuditWriteFailure":   ErrAuditWriteFailure,
	}

	expected := map[string]string{
		"ErrInputMalformed":      "INPUT_MALFORMED",
		"ErrSchemaMismatch":      "SCHEMA_MISMATCH",
		"ErrStoreTransient":      "STORE_TRANSIENT",
		"ErrConstraintViolation": "CONSTRAINT_VIOLATION",
		"ErrPHIEncryption":       "PHI_ENCRYPTION_ERROR",
		"ErrCancelled":           "LOAD_CANCELLED",
		"ErrAuditWriteFailure":   "AUDIT_WRITE_FAILURE",
	}

	for name, actual := range constants {
		if actual != expected[name] {
			t.Errorf("expected %s to be %s, got %s", name, expected[name], actual)
		}
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{Line: 42, Message: "non-numeric POS", Excerpt: "chr1\tXYZ\t..."}
	expected := "line 42: non-numeric POS"
	if err.Error() != expected {
		t.Errorf("expected %s, got %s", expected, err.Error())
	}
}
