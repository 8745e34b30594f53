package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/config"
)

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name     string
		opName   string
		email    string
		password string
		wantErr  string
	}{
		{"valid", "Line Engineer", "eng@plant.example", "s3cret99", ""},
		{"blank name", "  ", "eng@plant.example", "s3cret99", "name is required"},
		{"bad email", "Line Engineer", "eng@plant", "s3cret99", "invalid email format"},
		{"short password", "Line Engineer", "eng@plant.example", "s3c", "at least 8 characters"},
		{"no digit", "Line Engineer", "eng@plant.example", "secretsecret", "one letter and one number"},
		{"no letter", "Line Engineer", "eng@plant.example", "1234567890", "one letter and one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInputs(tt.opName, tt.email, tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRootCmd(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing required flags",
			args:    []string{"--name", "Line Engineer"},
			wantErr: `required flag(s) "email", "password" not set`,
		},
		{
			name:    "invalid input is rejected before connecting",
			args:    []string{"--name", "Line Engineer", "--email", "eng@plant", "--password", "s3cret99"},
			wantErr: "invalid email format",
		},
		{
			name:    "database url required",
			args:    []string{"--name", "Line Engineer", "--email", "eng@plant.example", "--password", "s3cret99"},
			wantErr: "DATABASE_URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")

			cmd := newRootCmd(config.New())
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
