package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCredentialsBarePassword(t *testing.T) {
	identity, password := ParseCredentials("s3cret")
	require.Empty(t, identity)
	require.Equal(t, "s3cret", password)
}

func TestParseCredentialsIdentityThenPassword(t *testing.T) {
	identity, password := ParseCredentials("<i>/home/afd/.ssh/id_rsa</i><p>s3cret</p>")
	require.Equal(t, "/home/afd/.ssh/id_rsa", identity)
	require.Equal(t, "s3cret", password)
}

func TestParseCredentialsPasswordThenIdentity(t *testing.T) {
	identity, password := ParseCredentials("<p>s3cret</p><i>/home/afd/.ssh/id_rsa</i>")
	require.Equal(t, "/home/afd/.ssh/id_rsa", identity)
	require.Equal(t, "s3cret", password)
}

func TestParseCredentialsIdentityOnly(t *testing.T) {
	identity, password := ParseCredentials("<i>/home/afd/.ssh/id_rsa</i>")
	require.Equal(t, "/home/afd/.ssh/id_rsa", identity)
	require.Empty(t, password)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "connect_error", OutcomeConnectError.String())
	require.Equal(t, "timeout", OutcomeTimeout.String())
}

func TestWithTimeoutSuccessPassesThrough(t *testing.T) {
	err := withTimeout(context.Background(), time.Second, OutcomeWriteRemoteError, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestWithTimeoutWrapsFailure(t *testing.T) {
	wantErr := errors.New("boom")
	err := withTimeout(context.Background(), time.Second, OutcomeWriteRemoteError, func(context.Context) error {
		return wantErr
	})
	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, OutcomeWriteRemoteError, te.Outcome)
	require.ErrorIs(t, err, wantErr)
}

func TestWithTimeoutExpires(t *testing.T) {
	err := withTimeout(context.Background(), 10*time.Millisecond, OutcomeWriteRemoteError, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, OutcomeTimeout, te.Outcome)
}

func TestWithTimeoutZeroDisablesEnforcement(t *testing.T) {
	err := withTimeout(context.Background(), 0, OutcomeWriteRemoteError, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestModeFromUnixMasksToPermissionBits(t *testing.T) {
	require.Equal(t, uint32(0o644), uint32(modeFromUnix(0o100644)))
}
