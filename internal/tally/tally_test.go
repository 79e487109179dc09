package tally

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"

	"github.com/and161185/ballot-keeper/internal/model"
)

var (
	alice = model.Candidate{ID: "C1", Name: "Alice", Party: "Green"}
	bob   = model.Candidate{ID: "C2", Name: "Bob", Party: "Blue"}
)

func TestEngine_RecordAndTally(t *testing.T) {
	t.Parallel()

	e := New()
	require.True(t, e.AddCandidate(alice))
	require.True(t, e.AddCandidate(bob))
	require.False(t, e.AddCandidate(model.Candidate{ID: "C1", Name: "Other", Party: "X"}))

	e.Record("VOTER_1", "C1")
	e.Record("VOTER_2", "C2")
	e.Record("VOTER_3", "C1")

	require.True(t, e.HasVoted("VOTER_2"))
	require.False(t, e.HasVoted("VOTER_9"))
	require.Equal(t, 3, e.VotedCount())
	if diff := deep.Equal(e.Tally(), map[string]int{"Alice (Green)": 2, "Bob (Blue)": 1}); diff != nil {
		t.Fatal(diff)
	}
	require.InDelta(t, 0.15, e.Turnout(20), 1e-9)
	require.Zero(t, e.Turnout(0))
}

func TestEngine_UnknownCandidateConsumesToken(t *testing.T) {
	t.Parallel()

	e := New()
	e.AddCandidate(alice)
	e.Record("VOTER_1", "GONE")

	require.True(t, e.HasVoted("VOTER_1"))
	require.Equal(t, 0, e.Counts()[0].Votes)
}

func TestEngine_ResetKeepsCandidates(t *testing.T) {
	t.Parallel()

	e := New()
	e.AddCandidate(alice)
	e.Record("VOTER_1", "C1")
	e.Reset()

	require.Equal(t, 0, e.VotedCount())
	require.False(t, e.HasVoted("VOTER_1"))
	require.Equal(t, map[string]int{"Alice (Green)": 0}, e.Tally())
	require.True(t, e.HasCandidate("C1"))
}

func TestEngine_Winner(t *testing.T) {
	t.Parallel()

	e := New()
	_, ok := e.Winner()
	require.False(t, ok)

	e.AddCandidate(alice)
	e.AddCandidate(bob)
	w, ok := e.Winner()
	require.True(t, ok)
	require.Equal(t, "C1", w.Candidate.ID, "zero-zero tie goes to first inserted")

	e.Record("VOTER_1", "C2")
	w, _ = e.Winner()
	require.Equal(t, "C2", w.Candidate.ID)

	e.Record("VOTER_2", "C1")
	w, _ = e.Winner()
	require.Equal(t, "C1", w.Candidate.ID, "1-1 tie goes to first inserted")
}

func TestEngine_Replay(t *testing.T) {
	t.Parallel()

	e := New()
	e.AddCandidate(model.Candidate{ID: "OLD", Name: "Old", Party: "Gone"})
	e.Record("VOTER_X", "OLD")

	e.Replay([]model.Candidate{alice, bob}, []model.Vote{
		{Token: "VOTER_1", CandidateID: "C2"},
		{Token: "VOTER_2", CandidateID: "C2"},
	})

	require.False(t, e.HasCandidate("OLD"))
	require.False(t, e.HasVoted("VOTER_X"))
	res := e.Results(4)
	require.Equal(t, 2, res.TotalVotes)
	require.InDelta(t, 0.5, res.Turnout, 1e-9)
	require.NotNil(t, res.Winner)
	require.Equal(t, "C2", res.Winner.Candidate.ID)
	want := []model.CandidateCount{{Candidate: alice, Votes: 0}, {Candidate: bob, Votes: 2}}
	if diff := deep.Equal(res.Counts, want); diff != nil {
		t.Fatal(diff)
	}
}

func TestEngine_TallySumsCollidingDisplays(t *testing.T) {
	t.Parallel()

	e := New()
	e.AddCandidate(alice)
	e.AddCandidate(model.Candidate{ID: "C9", Name: "Alice", Party: "Green"})
	e.Record("VOTER_1", "C1")
	e.Record("VOTER_2", "C9")
	require.Equal(t, map[string]int{"Alice (Green)": 2}, e.Tally())
}

func TestEngine_RepeatedTokenCountsOnce(t *testing.T) {
	t.Parallel()

	e := New()
	e.AddCandidate(alice)
	e.AddCandidate(bob)
	require.True(t, e.Record("VOTER_1", "C1"))
	require.False(t, e.Record("VOTER_1", "C2"))
	require.Equal(t, map[string]int{"Alice (Green)": 1, "Bob (Blue)": 0}, e.Tally())

	dropped := e.Replay([]model.Candidate{alice, bob}, []model.Vote{
		{Token: "VOTER_1", CandidateID: "C1"},
		{Token: "VOTER_2", CandidateID: "C2"},
		{Token: "VOTER_1", CandidateID: "C1"},
		{Token: "VOTER_1", CandidateID: "C2"},
	})
	require.Equal(t, 2, dropped)
	require.Equal(t, 2, e.VotedCount())

	sum := 0
	for _, n := range e.Tally() {
		sum += n
	}
	require.Equal(t, e.VotedCount(), sum)
	require.Equal(t, map[string]int{"Alice (Green)": 1, "Bob (Blue)": 1}, e.Tally())
}
