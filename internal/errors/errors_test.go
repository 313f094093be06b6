package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(MoveFailed, "host rejected move", cause)

	if err.Code != MoveFailed {
		t.Errorf("Code = %v, want %v", err.Code, MoveFailed)
	}
	if err.Message != "host rejected move" {
		t.Errorf("Message = %q, want %q", err.Message, "host rejected move")
	}
	if len(err.SuggestedFixes) != 2 {
		t.Errorf("len(SuggestedFixes) = %d, want 2", len(err.SuggestedFixes))
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestRelocationError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      HostUnavailable,
			message:   "cannot list projects",
			cause:     errors.New("permission denied"),
			wantParts: []string{"HOST_UNAVAILABLE", "cannot list projects", "permission denied"},
		},
		{
			name:      "without cause",
			code:      ProjectNotFound,
			message:   "project 'L' not found",
			cause:     nil,
			wantParts: []string{"PROJECT_NOT_FOUND", "project 'L' not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, should contain %q", got, part)
				}
			}
		})
	}
}

func TestIs(t *testing.T) {
	missing := New(MoveTargetMissing, "gone", nil)
	wrapped := fmt.Errorf("relocate: %w", missing)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"exact code", missing, MoveTargetMissing, true},
		{"subtype of move failure", missing, MoveFailed, true},
		{"wrapped", wrapped, MoveFailed, true},
		{"other code", missing, DuplicateReference, false},
		{"nil", nil, MoveFailed, false},
		{"plain error", errors.New("x"), InternalError, true},
		{"move failure is not a subtype of missing", New(MoveFailed, "x", nil), MoveTargetMissing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPostMove(t *testing.T) {
	if !IsPostMove(New(MoveFailed, "x", nil)) {
		t.Error("MoveFailed should be post-move")
	}
	if !IsPostMove(fmt.Errorf("wrap: %w", New(MoveTargetMissing, "x", nil))) {
		t.Error("wrapped MoveTargetMissing should be post-move")
	}
	if IsPostMove(New(ContainerCreationFailed, "x", nil)) {
		t.Error("ContainerCreationFailed happens before the move")
	}
	if IsPostMove(nil) {
		t.Error("nil is not post-move")
	}
}

func TestWithDetails(t *testing.T) {
	err := Newf(DuplicateReference, "holder %s", "A").WithDetails(map[string]string{"holder": "A"})
	if err.Message != "holder A" {
		t.Errorf("Message = %q, want %q", err.Message, "holder A")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(InternalError); fixes != nil {
		t.Errorf("GetSuggestedFixes(InternalError) = %v, want nil", fixes)
	}
	fixes := GetSuggestedFixes(MoveFailed)
	if len(fixes) == 0 || fixes[0].Type != ManualCheck {
		t.Errorf("MoveFailed should suggest a manual check first, got %v", fixes)
	}
}
