// Package tally is the in-memory vote count projection rebuilt from the ledger.
// An Engine is not safe for concurrent use; the ledger guards it with its own lock.
package tally

import "github.com/and161185/ballot-keeper/internal/model"

// Engine projects candidates, per-candidate counts and the voted-token set.
type Engine struct {
	order      []string
	candidates map[string]model.Candidate
	counts     map[string]int
	voted      map[string]struct{}
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		candidates: make(map[string]model.Candidate),
		counts:     make(map[string]int),
		voted:      make(map[string]struct{}),
	}
}

// AddCandidate registers c with a zero count; it reports false if the ID exists.
func (e *Engine) AddCandidate(c model.Candidate) bool {
	if _, ok := e.candidates[c.ID]; ok {
		return false
	}
	e.order = append(e.order, c.ID)
	e.candidates[c.ID] = c
	e.counts[c.ID] = 0
	return true
}

// HasCandidate reports whether id is a known candidate.
func (e *Engine) HasCandidate(id string) bool {
	_, ok := e.candidates[id]
	return ok
}

// Candidate returns the candidate with id.
func (e *Engine) Candidate(id string) (model.Candidate, bool) {
	c, ok := e.candidates[id]
	return c, ok
}

// Candidates returns all candidates in insertion order.
func (e *Engine) Candidates() []model.Candidate {
	out := make([]model.Candidate, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.candidates[id])
	}
	return out
}

// HasVoted reports whether token is in the voted set.
func (e *Engine) HasVoted(token string) bool {
	_, ok := e.voted[token]
	return ok
}

// Record marks token as voted and counts the vote if candidateID is known.
// Votes for unknown candidates still consume the token, matching replay of a log
// whose candidate line was lost. A token that already voted is ignored and
// Record reports false.
func (e *Engine) Record(token, candidateID string) bool {
	if _, dup := e.voted[token]; dup {
		return false
	}
	e.voted[token] = struct{}{}
	if _, ok := e.candidates[candidateID]; ok {
		e.counts[candidateID]++
	}
	return true
}

// Reset clears votes and zeroes every count; candidates are kept.
func (e *Engine) Reset() {
	e.voted = make(map[string]struct{})
	for id := range e.counts {
		e.counts[id] = 0
	}
}

// Replay rebuilds the whole projection from candidates and the vote log and
// returns the number of repeated-token tuples it dropped.
func (e *Engine) Replay(candidates []model.Candidate, votes []model.Vote) int {
	*e = *New()
	for _, c := range candidates {
		e.AddCandidate(c)
	}
	return e.ReplayVotes(votes)
}

// ReplayVotes resets the vote side of the projection and applies votes in order.
// Only the first tuple per token counts; it returns how many later ones were dropped.
func (e *Engine) ReplayVotes(votes []model.Vote) int {
	e.Reset()
	dropped := 0
	for _, v := range votes {
		if !e.Record(v.Token, v.CandidateID) {
			dropped++
		}
	}
	return dropped
}

// VotedCount is the number of distinct tokens that voted.
func (e *Engine) VotedCount() int { return len(e.voted) }

// Counts returns per-candidate counts in insertion order.
func (e *Engine) Counts() []model.CandidateCount {
	out := make([]model.CandidateCount, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, model.CandidateCount{Candidate: e.candidates[id], Votes: e.counts[id]})
	}
	return out
}

// Tally maps each candidate's display label to its count. Candidates sharing a
// label are summed.
func (e *Engine) Tally() map[string]int {
	out := make(map[string]int, len(e.order))
	for _, id := range e.order {
		out[e.candidates[id].Display()] += e.counts[id]
	}
	return out
}

// Turnout is VotedCount/registered, or 0 for an empty registry.
func (e *Engine) Turnout(registered int) float64 {
	if registered <= 0 {
		return 0
	}
	return float64(len(e.voted)) / float64(registered)
}

// Winner returns the candidate with the highest count; ties go to the first inserted.
func (e *Engine) Winner() (model.CandidateCount, bool) {
	var best model.CandidateCount
	found := false
	for _, id := range e.order {
		if !found || e.counts[id] > best.Votes {
			best = model.CandidateCount{Candidate: e.candidates[id], Votes: e.counts[id]}
			found = true
		}
	}
	return best, found
}

// Results assembles a snapshot for a registry of the given size.
func (e *Engine) Results(registered int) model.Results {
	res := model.Results{
		Counts:     e.Counts(),
		Tally:      e.Tally(),
		TotalVotes: len(e.voted),
		Registered: registered,
		Turnout:    e.Turnout(registered),
	}
	if w, ok := e.Winner(); ok {
		res.Winner = &w
	}
	return res
}
