package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateExchange(t *testing.T) {
	validTime := time.Now().Add(-1 * time.Hour)
	futureTime := time.Now().Add(1 * time.Hour)

	tests := []struct {
		name     string
		exchange *Exchange
		wantErr  error
	}{
		{
			name:     "valid exchange",
			exchange: &Exchange{UserMessage: "What is it?", AgentResponse: "A thing.", CreatedAt: validTime},
		},
		{
			name:     "empty response is allowed",
			exchange: &Exchange{UserMessage: "Anything?", CreatedAt: validTime},
		},
		{
			name:     "nil exchange",
			exchange: nil,
			wantErr:  ErrInvalidExchange,
		},
		{
			name:     "blank user message",
			exchange: &Exchange{UserMessage: "   ", AgentResponse: "x", CreatedAt: validTime},
			wantErr:  ErrEmptyQuery,
		},
		{
			name:     "future timestamp",
			exchange: &Exchange{UserMessage: "hi", CreatedAt: futureTime},
			wantErr:  ErrInvalidExchange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExchange(tt.exchange)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateExchange() error = %v, want nil", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateExchange() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunking(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"defaults", 800, 50, false},
		{"no overlap", 10, 0, false},
		{"overlap one less than size", 10, 9, false},
		{"overlap equals size", 10, 10, true},
		{"overlap exceeds size", 10, 11, true},
		{"negative overlap", 10, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunking(tt.size, tt.overlap)
			if tt.wantErr && !errors.Is(err, ErrInvalidChunking) {
				t.Errorf("ValidateChunking(%d, %d) error = %v, want ErrInvalidChunking", tt.size, tt.overlap, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateChunking(%d, %d) error = %v, want nil", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	if err := ValidateAssetID(""); !errors.Is(err, ErrEmptyAssetID) {
		t.Errorf("ValidateAssetID(\"\") error = %v", err)
	}
	if err := ValidateAssetID("a1"); err != nil {
		t.Errorf("ValidateAssetID(\"a1\") error = %v", err)
	}
	if err := ValidateSessionID(" "); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("ValidateSessionID(\" \") error = %v", err)
	}
	if err := ValidateSessionID("s1"); err != nil {
		t.Errorf("ValidateSessionID(\"s1\") error = %v", err)
	}
}

func TestIsValidTimestamp(t *testing.T) {
	if !IsValidTimestamp(time.Now().Add(-time.Second)) {
		t.Error("past timestamp should be valid")
	}
	if IsValidTimestamp(time.Now().Add(time.Hour)) {
		t.Error("future timestamp should be invalid")
	}
}
