package scheduler_test

import (
	"testing"

	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/scheduler"
	"github.com/absmach/cohort/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, load uint64, local bool) scheduler.Candidate {
	return scheduler.Candidate{Node: node.Node{ID: id}, Load: load, Local: local}
}

func TestLeastLoaded(t *testing.T) {
	cases := []struct {
		desc       string
		candidates []scheduler.Candidate
		want       string
		err        error
	}{
		{
			desc:       "local is least loaded",
			candidates: []scheduler.Candidate{candidate("a", 3, false), candidate("b", 1, false), candidate("c", 2, false), candidate("self", 0, true)},
			want:       "self",
		},
		{
			desc:       "tie prefers local",
			candidates: []scheduler.Candidate{candidate("a", 3, false), candidate("b", 1, false), candidate("c", 2, false), candidate("self", 1, true)},
			want:       "self",
		},
		{
			desc:       "remote wins on lower load",
			candidates: []scheduler.Candidate{candidate("self", 4, true), candidate("b", 2, false), candidate("a", 2, false)},
			want:       "a",
		},
		{
			desc:       "only local",
			candidates: []scheduler.Candidate{candidate("self", 9, true)},
			want:       "self",
		},
		{
			desc: "no candidates",
			err:  scheduler.ErrNoCandidate,
		},
	}

	s := scheduler.NewLeastLoaded()
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := s.Select(task.Envelope{}, tc.candidates)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Node.ID)
		})
	}
}

func TestRoundRobin(t *testing.T) {
	s, err := scheduler.New(scheduler.RoundRobinName)
	require.NoError(t, err)

	candidates := []scheduler.Candidate{candidate("c", 0, false), candidate("a", 5, true), candidate("b", 0, false)}
	var order []string
	for range 4 {
		got, err := s.Select(task.Envelope{}, candidates)
		require.NoError(t, err)
		order = append(order, got.Node.ID)
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, order)
}

func TestNew(t *testing.T) {
	_, err := scheduler.New("")
	assert.NoError(t, err)

	_, err = scheduler.New("random")
	assert.ErrorIs(t, err, scheduler.ErrUnknownScheduler)
}
