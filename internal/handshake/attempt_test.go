package handshake_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/monrst/internal/handshake"
	"github.com/omochice/monrst/pkg/protocol"
)

func TestAttempt_Admitted(t *testing.T) {
	attempt := handshake.New(server).Begin()
	require.Equal(t, handshake.StatePending, attempt.State())

	config, err := attempt.Resolve(params("version", "0.1.0", "format", "json"))
	require.NoError(t, err)
	require.Equal(t, protocol.FormatJSON, config.Format)
	require.Equal(t, handshake.StateAdmitted, attempt.State())

	outcome, reason := attempt.Outcome()
	require.NoError(t, reason)
	require.Equal(t, config, outcome)

	_, err = attempt.Resolve(params("version", "0.1.0", "format", "binary"))
	require.ErrorIs(t, err, handshake.ErrAttemptResolved)
	require.False(t, attempt.Expire())
	require.Equal(t, handshake.StateAdmitted, attempt.State())
}

func TestAttempt_Rejected(t *testing.T) {
	attempt := handshake.New(server).Begin()

	_, err := attempt.Resolve(params("version", "0.1.0"))
	require.ErrorIs(t, err, handshake.ErrMissingParameter)
	require.Equal(t, handshake.StateRejected, attempt.State())

	// No retry on the same attempt, even with valid parameters.
	_, err = attempt.Resolve(params("version", "0.1.0", "format", "json"))
	require.ErrorIs(t, err, handshake.ErrAttemptResolved)

	_, reason := attempt.Outcome()
	require.ErrorIs(t, reason, handshake.ErrMissingParameter)
}

func TestAttempt_Expire(t *testing.T) {
	attempt := handshake.New(server).Begin()

	require.True(t, attempt.Expire())
	require.Equal(t, handshake.StateRejected, attempt.State())
	_, reason := attempt.Outcome()
	require.ErrorIs(t, reason, handshake.ErrTimeout)

	require.False(t, attempt.Expire())
	_, err := attempt.Resolve(params("version", "0.1.0", "format", "json"))
	require.ErrorIs(t, err, handshake.ErrAttemptResolved)
}

func TestAttempt_Reject(t *testing.T) {
	attempt := handshake.New(server).Begin()
	reason := errors.New("bad request line")

	require.True(t, attempt.Reject(reason))
	require.False(t, attempt.Reject(reason))
	require.False(t, attempt.Expire())
	require.Equal(t, handshake.StateRejected, attempt.State())

	_, got := attempt.Outcome()
	require.ErrorIs(t, got, reason)
}

func TestAttempt_ResolveRacesExpire(t *testing.T) {
	for i := 0; i < 50; i++ {
		attempt := handshake.New(server).Begin()

		var (
			wg       sync.WaitGroup
			resolved error
			expired  bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, resolved = attempt.Resolve(params("version", "0.1.0", "format", "json"))
		}()
		go func() {
			defer wg.Done()
			expired = attempt.Expire()
		}()
		wg.Wait()

		// Exactly one of them wins.
		if expired {
			require.ErrorIs(t, resolved, handshake.ErrAttemptResolved)
			require.Equal(t, handshake.StateRejected, attempt.State())
		} else {
			require.NoError(t, resolved)
			require.Equal(t, handshake.StateAdmitted, attempt.State())
		}
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "pending", handshake.StatePending.String())
	require.Equal(t, "admitted", handshake.StateAdmitted.String())
	require.Equal(t, "rejected", handshake.StateRejected.String())
	require.Equal(t, "unknown", handshake.State(42).String())
}
