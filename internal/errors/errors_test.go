package errors

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindIO, "I/O error"},
		{KindPath, "Path error"},
		{KindCommand, "Command error"},
		{KindSpawn, "Spawn failure"},
		{KindBusy, "Pipeline busy"},
		{KindKnownMisconfiguration, "Known misconfiguration"},
		{KindRuntime, "Runtime error"},
		{KindParseAnomaly, "Parse anomaly"},
		{KindConfig, "Configuration error"},
		{KindNoFilesFound, "No files found"},
		{KindResultsFile, "Results file error"},
		{KindCancelled, "Operation cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("ErrorKind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCoreErrorError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &CoreError{
		Kind:       KindIO,
		Message:    "test message",
		Underlying: underlying,
	}

	got := err.Error()
	expected := "I/O error: test message: underlying error"
	if got != expected {
		t.Errorf("CoreError.Error() = %v, want %v", got, expected)
	}

	err2 := &CoreError{
		Kind:    KindConfig,
		Message: "config issue",
	}

	got2 := err2.Error()
	expected2 := "Configuration error: config issue"
	if got2 != expected2 {
		t.Errorf("CoreError.Error() = %v, want %v", got2, expected2)
	}
}

func TestCoreErrorIs(t *testing.T) {
	err1 := &CoreError{Kind: KindSpawn, Message: "test1"}
	err2 := &CoreError{Kind: KindSpawn, Message: "test2"}
	err3 := &CoreError{Kind: KindConfig, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Same kind errors should match")
	}

	if err1.Is(err3) {
		t.Error("Different kind errors should not match")
	}

	wrapped := fmt.Errorf("job 3: %w", err1)
	if !errors.Is(wrapped, &CoreError{Kind: KindSpawn}) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestCommandError(t *testing.T) {
	startErr := &CommandError{
		Command:    "vspipe",
		Kind:       CommandStart,
		Underlying: errors.New("permission denied"),
	}
	if got := startErr.Error(); got != "failed to execute vspipe: permission denied" {
		t.Errorf("CommandStart error = %v", got)
	}

	notFound := &CommandError{
		Command:    "ffmpeg",
		Kind:       CommandStart,
		NotFound:   true,
		Underlying: exec.ErrNotFound,
	}
	if got := notFound.Error(); got != "executable ffmpeg not found: executable file not found in $PATH" {
		t.Errorf("CommandStart not found error = %v", got)
	}

	failedErr := &CommandError{
		Command:  "ffmpeg",
		Kind:     CommandFailed,
		ExitCode: 1,
	}
	expected := "command ffmpeg failed with exit code 1"
	if got := failedErr.Error(); got != expected {
		t.Errorf("CommandFailed error = %v, want %v", got, expected)
	}
}

func TestWrapStartError(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		_, lookErr := exec.LookPath("rpcheck-definitely-not-installed")
		err := WrapStartError("rpcheck-definitely-not-installed", lookErr)
		if !IsSpawn(err) {
			t.Fatalf("expected spawn failure, got %v", err)
		}
		if !IsNotFound(err) {
			t.Error("expected NotFound to be set for a missing binary")
		}
	})

	t.Run("other start failure", func(t *testing.T) {
		err := WrapStartError("vspipe", errors.New("fork/exec: resource temporarily unavailable"))
		if !IsSpawn(err) {
			t.Fatalf("expected spawn failure, got %v", err)
		}
		if IsNotFound(err) {
			t.Error("NotFound should only be set for missing executables")
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *CoreError
		kind ErrorKind
	}{
		{"NewIOError", NewIOError("disk full", errors.New("no space")), KindIO},
		{"NewPathError", NewPathError("invalid path"), KindPath},
		{"NewBusyError", NewBusyError(), KindBusy},
		{"NewRuntimeError", NewRuntimeError("ffmpeg", 1), KindRuntime},
		{"NewKnownMisconfigurationError", NewKnownMisconfigurationError("lsmas-missing", "install L-SMASH"), KindKnownMisconfiguration},
		{"NewParseAnomalyError", NewParseAnomalyError("frame 120 beyond total 100"), KindParseAnomaly},
		{"NewConfigError", NewConfigError("invalid backend"), KindConfig},
		{"NewNoFilesFoundError", NewNoFilesFoundError("/test/dir"), KindNoFilesFound},
		{"NewResultsFileError", NewResultsFileError("x.rpc", errors.New("eof")), KindResultsFile},
		{"NewCancelledError", NewCancelledError(), KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Expected %v, got %v", tt.kind, tt.err.Kind)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := NewConfigError("test")

	if !IsKind(err, KindConfig) {
		t.Error("IsKind should return true for matching kind")
	}

	if IsKind(err, KindIO) {
		t.Error("IsKind should return false for non-matching kind")
	}

	if IsKind(errors.New("plain error"), KindConfig) {
		t.Error("IsKind should return false for non-CoreError")
	}
}

func TestIsBusyAndCancelled(t *testing.T) {
	if !IsBusy(NewBusyError()) {
		t.Error("IsBusy should return true for busy error")
	}
	if IsBusy(NewCancelledError()) {
		t.Error("IsBusy should return false for cancelled error")
	}
	if !IsCancelled(NewCancelledError()) {
		t.Error("IsCancelled should return true for cancelled error")
	}
	if !IsNoFilesFound(NewNoFilesFoundError("/test")) {
		t.Error("IsNoFilesFound should return true for no-files-found error")
	}
}
