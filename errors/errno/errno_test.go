package errno

import (
	"testing"

	"github.com/stretchr/testify/require"

	kerrors "github.com/axeberg/axebergos/errors"
)

func TestFromErrorMapsSentinelsToStableNegativeCodes(t *testing.T) {
	require.Equal(t, OK, FromError(nil))
	require.Equal(t, ErrNotFound, FromError(kerrors.ErrNotFound))
	require.Equal(t, ErrBadFd, FromError(kerrors.ErrBadFd))
	require.Equal(t, ErrPermission, FromError(kerrors.ErrPermissionDenied))
	require.Equal(t, ErrUnknown, FromError(errUnclassified{}))
}

type errUnclassified struct{}

func (errUnclassified) Error() string { return "unclassified" }
