package archivemirror_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/archivemirror"
)

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := archivemirror.New(archivemirror.Config{
		Endpoint: "",
		Bucket:   "afd-archive",
	})
	require.Error(t, err)
}

func TestNewAcceptsValidConfig(t *testing.T) {
	m, err := archivemirror.New(archivemirror.Config{
		Endpoint:        "minio.internal:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Bucket:          "afd-archive",
		UseSSL:          false,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
}
