package inference

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name: "valid analysis",
			req:  Request{Operation: OperationTextAnalysis, Input: "some answer text"},
		},
		{
			name: "valid transcription",
			req:  Request{Operation: OperationTranscription, Input: "audio-ref"},
		},
		{
			name: "valid translation",
			req: Request{
				Operation:      OperationTranslation,
				Input:          "bonjour",
				TargetLanguage: "English",
			},
		},
		{
			name:    "empty input",
			req:     Request{Operation: OperationTextAnalysis},
			wantErr: ErrEmptyInput,
		},
		{
			name:    "unknown operation",
			req:     Request{Operation: "summarization", Input: "text"},
			wantErr: ErrUnknownOperation,
		},
		{
			name:    "translation without target language",
			req:     Request{Operation: OperationTranslation, Input: "bonjour"},
			wantErr: ErrMissingTargetLanguage,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: ErrRateLimited, want: true},
		{name: "unavailable", err: ErrUnavailable, want: true},
		{name: "wrapped rate limited", err: fmt.Errorf("call failed: %w", ErrRateLimited), want: true},
		{name: "invalid request", err: ErrInvalidRequest, want: false},
		{name: "content blocked", err: ErrContentBlocked, want: false},
		{name: "invalid response", err: ErrInvalidResponse, want: false},
		{name: "arbitrary error", err: errors.New("boom"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
