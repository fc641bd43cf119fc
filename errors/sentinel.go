// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Process and scheduling errors.
var (
	// ErrNoProcess indicates the calling or target process does not exist.
	ErrNoProcess = &KernelError{Kind: NoProcess, Detail: "no such process"}

	// ErrNoChild indicates waitpid found no matching child.
	ErrNoChild = &KernelError{Kind: NoChild, Detail: "no child processes"}

	// ErrInvalidTransition indicates a process state transition outside P1-P4.
	ErrInvalidTransition = &KernelError{Kind: InvalidArgument, Detail: "invalid process state transition"}
)

// VFS and path errors.
var (
	// ErrNotFound indicates a path or object does not exist.
	ErrNotFound = &KernelError{Kind: NotFound, Detail: "not found"}

	// ErrExists indicates a create-exclusive target already exists.
	ErrExists = &KernelError{Kind: Exists, Detail: "already exists"}

	// ErrNotADir indicates a non-directory where a directory was required.
	ErrNotADir = &KernelError{Kind: NotADir, Detail: "not a directory"}

	// ErrIsADir indicates a directory where a regular file was required.
	ErrIsADir = &KernelError{Kind: IsADir, Detail: "is a directory"}

	// ErrNotEmpty indicates a non-empty directory could not be removed.
	ErrNotEmpty = &KernelError{Kind: NotEmpty, Detail: "directory not empty"}

	// ErrLoop indicates symlink resolution exceeded the 40-dereference cap (V1).
	ErrLoop = &KernelError{Kind: Loop, Detail: "too many levels of symbolic links"}

	// ErrNameTooLong indicates a path component or total length exceeded V1's bounds.
	ErrNameTooLong = &KernelError{Kind: InvalidArgument, Detail: "name too long"}

	// ErrJailEscape indicates a resolved path would leave the process jail (V3).
	ErrJailEscape = &KernelError{Kind: PermissionDenied, Detail: "path escapes jail root"}
)

// Permission errors.
var (
	// ErrPermissionDenied indicates a credential/capability/mode check failed.
	ErrPermissionDenied = &KernelError{Kind: PermissionDenied, Detail: "permission denied"}
)

// FD/object errors.
var (
	// ErrBadFd indicates an operation referenced a closed or unknown fd.
	ErrBadFd = &KernelError{Kind: BadFd, Detail: "bad file descriptor"}

	// ErrTooManyOpenFiles indicates the per-process NOFILE limit was reached.
	ErrTooManyOpenFiles = &KernelError{Kind: TooManyOpenFiles, Detail: "too many open files"}
)

// General argument/size errors.
var (
	// ErrInvalidArgument indicates a malformed enum, pointer, or count.
	ErrInvalidArgument = &KernelError{Kind: InvalidArgument, Detail: "invalid argument"}

	// ErrTooBig indicates a size or arithmetic overflow.
	ErrTooBig = &KernelError{Kind: TooBig, Detail: "value too large"}
)

// Blocking/IPC errors.
var (
	// ErrWouldBlock indicates a non-blocking call would otherwise have suspended.
	ErrWouldBlock = &KernelError{Kind: WouldBlock, Detail: "would block"}

	// ErrBrokenPipe indicates a write found no readers remaining.
	ErrBrokenPipe = &KernelError{Kind: BrokenPipe, Detail: "broken pipe"}

	// ErrBusy indicates a resource is held and cannot be mutated right now.
	ErrBusy = &KernelError{Kind: Busy, Detail: "resource busy"}

	// ErrInterrupted indicates a blocking call was interrupted before completion.
	ErrInterrupted = &KernelError{Kind: Interrupted, Detail: "interrupted"}
)

// Resource/quota errors.
var (
	// ErrQuotaExceeded indicates a soft resource limit or system quota was hit.
	ErrQuotaExceeded = &KernelError{Kind: QuotaExceeded, Detail: "quota exceeded"}
)

// Memory subkinds (Kind Memory, distinguished by Detail).
var (
	ErrMemOutOfBounds = &KernelError{Kind: Memory, Detail: "out of bounds"}
	ErrMemNotWritable = &KernelError{Kind: Memory, Detail: "region not writable"}
	ErrMemNotReadable = &KernelError{Kind: Memory, Detail: "region not readable"}
)

// Signal subkinds (Kind Signal, distinguished by Detail).
var (
	ErrSignalUnblockable = &KernelError{Kind: Signal, Detail: "signal cannot be blocked"}
	ErrSignalUnknown     = &KernelError{Kind: Signal, Detail: "unknown signal"}
)
