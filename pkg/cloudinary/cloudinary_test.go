package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicIDIsStable(t *testing.T) {
	require.Equal(t, "wrong-notes-5-job-12.pdf", PublicID("wrong notes/5 job 12.PDF"))
	require.Equal(t, PublicID("a.pdf"), PublicID("a.pdf"))
	require.Equal(t, "report.pdf", PublicID("??.pdf"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
