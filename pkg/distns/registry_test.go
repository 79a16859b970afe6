package distns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NormalRegistered(t *testing.T) {
	d, err := Lookup(NormalName)
	require.NoError(t, err)
	assert.Equal(t, NormalName, d.Name())
	assert.Equal(t, 2, d.NumParams())
	assert.Contains(t, Names(), NormalName)

	_, err = Lookup("gamma")
	assert.Error(t, err)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { Register(NormalName, NewNormal(nil, nil)) })
}

func TestScoreFor(t *testing.T) {
	d, err := Lookup(NormalName)
	require.NoError(t, err)

	s, err := ScoreFor(d, LogScoreName)
	require.NoError(t, err)
	assert.IsType(t, NormalLogScore{}, s)

	sc, err := ScorerFor(d, CRPScoreName)
	require.NoError(t, err)
	assert.Equal(t, CRPScoreName, sc.Name())

	_, err = ScoreFor(d, "brier")
	assert.Error(t, err)
}

// 编译期检查
var (
	_ Distribution = (*Normal)(nil)
	_ Scorer       = NormalLogScore{}
	_ Scorer       = NormalCRPScore{}
)
