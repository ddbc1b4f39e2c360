package commands

import (
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc/transcript"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitProfile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	profile := &model.Profile{ID: "p", Age: 29, Gender: 1, Interests: []uint32{3}, Preferences: model.Preferences{AgeMin: 25, AgeMax: 35}}

	paths, err := splitProfile(profile, dir)
	require.NoError(t, err)
	require.Len(t, paths, model.PartyCount)

	var set model.ShareSet
	for i, p := range paths {
		require.Equal(t, filepath.Join(dir, model.ShareFileName(i)), p)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		set[i] = data
	}

	combined, err := transcript.Combine(set)
	require.NoError(t, err)
	want, err := profile.Encode()
	require.NoError(t, err)
	require.Equal(t, want, combined)

	_, err = splitProfile(&model.Profile{}, dir)
	require.ErrorIs(t, err, model.ErrValidation)
}
