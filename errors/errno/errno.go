// Package errno maps the kernel's error taxonomy to the stable negative
// integers the syscall ABI returns to WASM-module callers.
package errno

import (
	"golang.org/x/sys/unix"

	kerrors "github.com/axeberg/axebergos/errors"
)

// neg turns a POSIX errno value into the negative ABI return code the
// syscall boundary uses, mirroring the host kernel convention of
// returning -errno on failure.
func neg(e unix.Errno) int32 { return -int32(e) }

// Values follow golang.org/x/sys/unix's POSIX errno numbering directly
// (Memory maps to ENOMEM); the members with no POSIX equivalent (Signal
// delivery failures and the catch-all Unknown) get dedicated negative
// slots past the POSIX range.
var (
	OK            int32 = 0
	ErrNotFound         = neg(unix.ENOENT)
	ErrInterrupted      = neg(unix.EINTR)
	ErrIo               = neg(unix.EIO)
	ErrBadFd            = neg(unix.EBADF)
	ErrWouldBlock       = neg(unix.EAGAIN)
	ErrNoProcess        = neg(unix.ESRCH)
	ErrPermission       = neg(unix.EACCES)
	ErrExists           = neg(unix.EEXIST)
	ErrNotADir          = neg(unix.ENOTDIR)
	ErrIsADir           = neg(unix.EISDIR)
	ErrInvalidArg       = neg(unix.EINVAL)
	ErrTooManyOpen      = neg(unix.EMFILE)
	ErrTooBig           = neg(unix.EFBIG)
	ErrBrokenPipe       = neg(unix.EPIPE)
	ErrNameTooLong      = neg(unix.ENAMETOOLONG)
	ErrNoChild          = neg(unix.ECHILD)
	ErrLoop             = neg(unix.ELOOP)
	ErrNotEmpty         = neg(unix.ENOTEMPTY)
	ErrBusy             = neg(unix.EBUSY)
	ErrQuotaExceeded    = neg(unix.EDQUOT)
	ErrMemory           = neg(unix.ENOMEM)
	ErrSignal     int32 = -201
	ErrUnknown    int32 = -255
)

// FromKind maps a taxonomy Kind to its stable ABI integer. Unrecognized
// kinds map to ErrUnknown rather than panicking: the boundary never aborts
// the host process on an internal classification gap.
func FromKind(k kerrors.Kind) int32 {
	switch k {
	case kerrors.NotFound:
		return ErrNotFound
	case kerrors.Exists:
		return ErrExists
	case kerrors.NotADir:
		return ErrNotADir
	case kerrors.IsADir:
		return ErrIsADir
	case kerrors.NotEmpty:
		return ErrNotEmpty
	case kerrors.PermissionDenied:
		return ErrPermission
	case kerrors.BadFd:
		return ErrBadFd
	case kerrors.TooManyOpenFiles:
		return ErrTooManyOpen
	case kerrors.InvalidArgument:
		return ErrInvalidArg
	case kerrors.TooBig:
		return ErrTooBig
	case kerrors.WouldBlock:
		return ErrWouldBlock
	case kerrors.BrokenPipe:
		return ErrBrokenPipe
	case kerrors.Busy:
		return ErrBusy
	case kerrors.NoProcess:
		return ErrNoProcess
	case kerrors.NoChild:
		return ErrNoChild
	case kerrors.Interrupted:
		return ErrInterrupted
	case kerrors.Loop:
		return ErrLoop
	case kerrors.QuotaExceeded:
		return ErrQuotaExceeded
	case kerrors.Memory:
		return ErrMemory
	case kerrors.Signal:
		return ErrSignal
	case kerrors.Io:
		return ErrIo
	default:
		return ErrUnknown
	}
}

// FromError walks err's chain for a *KernelError and maps its Kind. A nil
// error maps to OK; an error with no KernelError in its chain maps to
// ErrUnknown.
func FromError(err error) int32 {
	if err == nil {
		return OK
	}
	kind, ok := kerrors.GetKind(err)
	if !ok {
		return ErrUnknown
	}
	return FromKind(kind)
}
