package fl_test

import (
	"testing"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentStorage(t *testing.T) {
	ps, err := fl.NewPersistentStorage(t.TempDir())
	require.NoError(t, err)

	latest, err := ps.LatestModel()
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, round := range []uint64{2, 10, 3} {
		require.NoError(t, ps.SaveModel(fl.GlobalModel{Round: round, Weights: []float64{float64(round)}}))
		require.NoError(t, ps.SaveRecord(fl.RoundRecord{Round: round, ParticipantCount: 2, Method: fl.FederatedAveraging}))
	}

	latest, err = ps.LatestModel()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, uint64(10), latest.Round)
	assert.Equal(t, []float64{10}, latest.Weights)

	records, err := ps.Records()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []uint64{2, 3, 10}, []uint64{records[0].Round, records[1].Round, records[2].Round})
}
