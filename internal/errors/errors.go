// Package errors provides structured error types for rpcheck operations.
package errors

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// KindIO represents I/O errors.
	KindIO ErrorKind = iota
	// KindPath represents path-related errors.
	KindPath
	// KindCommand represents external command execution errors.
	KindCommand
	// KindSpawn means the measurement tool could not be located or started.
	KindSpawn
	// KindBusy means a job was submitted while another one was running.
	KindBusy
	// KindKnownMisconfiguration represents a recognized failure signature in tool output.
	KindKnownMisconfiguration
	// KindRuntime represents a nonzero tool exit with no recognized signature.
	KindRuntime
	// KindParseAnomaly represents tool output that could not be interpreted.
	KindParseAnomaly
	// KindConfig represents configuration validation errors.
	KindConfig
	// KindNoFilesFound represents no suitable video files found.
	KindNoFilesFound
	// KindResultsFile represents a failure reading or writing a results file.
	KindResultsFile
	// KindCancelled represents user-cancelled operations.
	KindCancelled
)

// String returns a string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "I/O error"
	case KindPath:
		return "Path error"
	case KindCommand:
		return "Command error"
	case KindSpawn:
		return "Spawn failure"
	case KindBusy:
		return "Pipeline busy"
	case KindKnownMisconfiguration:
		return "Known misconfiguration"
	case KindRuntime:
		return "Runtime error"
	case KindParseAnomaly:
		return "Parse anomaly"
	case KindConfig:
		return "Configuration error"
	case KindNoFilesFound:
		return "No files found"
	case KindResultsFile:
		return "Results file error"
	case KindCancelled:
		return "Operation cancelled"
	default:
		return "Unknown error"
	}
}

// CommandErrorKind represents the type of command error.
type CommandErrorKind int

const (
	// CommandStart means the command failed to start.
	CommandStart CommandErrorKind = iota
	// CommandWait means waiting for the command failed.
	CommandWait
	// CommandFailed means the command returned non-zero exit status.
	CommandFailed
)

// CommandError represents an error from executing an external command.
type CommandError struct {
	Command    string
	Kind       CommandErrorKind
	ExitCode   int
	NotFound   bool
	Underlying error
}

func (e *CommandError) Error() string {
	switch e.Kind {
	case CommandStart:
		if e.NotFound {
			return fmt.Sprintf("executable %s not found: %v", e.Command, e.Underlying)
		}
		return fmt.Sprintf("failed to execute %s: %v", e.Command, e.Underlying)
	case CommandWait:
		return fmt.Sprintf("failed to wait for %s: %v", e.Command, e.Underlying)
	case CommandFailed:
		return fmt.Sprintf("command %s failed with exit code %d", e.Command, e.ExitCode)
	default:
		return fmt.Sprintf("command %s error: %v", e.Command, e.Underlying)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Underlying
}

// CoreError is the main error type for rpcheck operations.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
}

func (e *CoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target matches this error's kind.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewIOError creates a new I/O error.
func NewIOError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindIO, Message: message, Underlying: underlying}
}

// NewPathError creates a new path-related error.
func NewPathError(message string) *CoreError {
	return &CoreError{Kind: KindPath, Message: message}
}

// NewSpawnError creates an error for a measurement tool that could not be started.
// notFound distinguishes a missing binary from one that exists but failed to launch.
func NewSpawnError(cmd string, notFound bool, underlying error) *CoreError {
	cmdErr := &CommandError{
		Command:    cmd,
		Kind:       CommandStart,
		NotFound:   notFound,
		Underlying: underlying,
	}
	return &CoreError{Kind: KindSpawn, Message: cmdErr.Error(), Underlying: cmdErr}
}

// NewCommandWaitError creates an error for when waiting for a command fails.
func NewCommandWaitError(cmd string, err error) *CoreError {
	cmdErr := &CommandError{Command: cmd, Kind: CommandWait, Underlying: err}
	return &CoreError{Kind: KindCommand, Message: cmdErr.Error(), Underlying: cmdErr}
}

// NewRuntimeError creates an error for a tool that exited nonzero without a known signature.
func NewRuntimeError(cmd string, exitCode int) *CoreError {
	cmdErr := &CommandError{Command: cmd, Kind: CommandFailed, ExitCode: exitCode}
	return &CoreError{Kind: KindRuntime, Message: cmdErr.Error(), Underlying: cmdErr}
}

// NewBusyError creates an error for a job submitted to a running pipeline.
func NewBusyError() *CoreError {
	return &CoreError{Kind: KindBusy, Message: "a measurement job is already running"}
}

// NewKnownMisconfigurationError creates an error describing a recognized failure signature.
func NewKnownMisconfigurationError(signature, hint string) *CoreError {
	return &CoreError{Kind: KindKnownMisconfiguration, Message: fmt.Sprintf("%s (%s)", signature, hint)}
}

// NewParseAnomalyError creates an error for tool output that could not be interpreted.
func NewParseAnomalyError(message string) *CoreError {
	return &CoreError{Kind: KindParseAnomaly, Message: message}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *CoreError {
	return &CoreError{Kind: KindConfig, Message: message}
}

// NewNoFilesFoundError creates an error for when no video files are found.
func NewNoFilesFoundError(dir string) *CoreError {
	return &CoreError{Kind: KindNoFilesFound, Message: fmt.Sprintf("no suitable video files found in %s", dir)}
}

// NewResultsFileError creates an error for a results file that could not be read or written.
func NewResultsFileError(path string, underlying error) *CoreError {
	return &CoreError{Kind: KindResultsFile, Message: path, Underlying: underlying}
}

// NewCancelledError creates an error for user-cancelled operations.
func NewCancelledError() *CoreError {
	return &CoreError{Kind: KindCancelled, Message: "operation was cancelled by the user"}
}

// IsKind checks if the error has the specified kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}

// IsCancelled checks if the error is a cancellation error.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// IsSpawn checks if the error is a spawn failure.
func IsSpawn(err error) bool {
	return IsKind(err, KindSpawn)
}

// IsBusy checks if the error is a busy-pipeline error.
func IsBusy(err error) bool {
	return IsKind(err, KindBusy)
}

// IsNotFound reports whether err is a spawn failure caused by a missing executable.
func IsNotFound(err error) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind == CommandStart && cmdErr.NotFound
	}
	return false
}

// IsNoFilesFound checks if the error is a no-files-found error.
func IsNoFilesFound(err error) bool {
	return IsKind(err, KindNoFilesFound)
}

// WrapStartError classifies an exec start failure into a spawn error.
func WrapStartError(cmd string, err error) *CoreError {
	notFound := errors.Is(err, exec.ErrNotFound)
	var pathErr *exec.Error
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, exec.ErrNotFound) {
		notFound = true
	}
	return NewSpawnError(cmd, notFound, err)
}
