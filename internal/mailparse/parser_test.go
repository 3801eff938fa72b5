package mailparse

import (
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Plain ASCII",
			input:    "Need help with my account",
			expected: "Need help with my account",
			wantErr:  false,
		},
		{
			name:     "UTF-8 encoded",
			input:    "=?UTF-8?Q?Probl=C3=A8me_de_connexion?=",
			expected: "Problème de connexion",
			wantErr:  false,
		},
		{
			name:     "ISO-8859-1 encoded",
			input:    "=?ISO-8859-1?Q?R=E9clamation?=",
			expected: "Réclamation",
			wantErr:  false,
		},
		{
			name:     "Base64 encoded",
			input:    "=?UTF-8?B?W1JlZG1pbmUgIzQyXSBSZTogaGVscA==?=",
			expected: "[Redmine #42] Re: help",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHeader(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("DecodeHeader() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple address",
			input:    "alice@example.com",
			expected: "alice@example.com",
		},
		{
			name:     "Address with display name",
			input:    "Alice Martin <alice@example.com>",
			expected: "alice@example.com",
		},
		{
			name:     "Address with quoted display name",
			input:    `"Martin, Alice" <alice.martin@example.com>`,
			expected: "alice.martin@example.com",
		},
		{
			name:     "No address",
			input:    "not an address",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAddress(tt.input)
			if got != tt.expected {
				t.Errorf("ExtractAddress() = %v, want %v", got, tt.expected)
			}
		})
	}
}
