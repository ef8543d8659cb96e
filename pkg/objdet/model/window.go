package model

import (
	"sort"

	"objdet/pkg/objdet/geometry"
)

// Window is a candidate detection region produced by the objectness
// filter: a top-left point, a size, and the list of (template id, vote
// count) pairs accumulated during hash-table lookup, per spec.md §3.
type Window struct {
	Rect       geometry.Rect
	Candidates []Candidate
}

// Candidate is one (template id, vote count) pair attached to a Window.
type Candidate struct {
	TemplateID int
	Votes      int
}

// HasCandidates reports whether any template survived hash verification.
func (w *Window) HasCandidates() bool { return len(w.Candidates) > 0 }

// AddVote increments the vote count for templateID, inserting a new
// Candidate if this is its first vote in this window.
func (w *Window) AddVote(templateID int) {
	for i := range w.Candidates {
		if w.Candidates[i].TemplateID == templateID {
			w.Candidates[i].Votes++
			return
		}
	}
	w.Candidates = append(w.Candidates, Candidate{TemplateID: templateID, Votes: 1})
}

// Prune keeps only candidates with Votes >= minVotes, then sorts the
// survivors by votes descending, ties broken by template id ascending,
// per spec.md §4.D.
func (w *Window) Prune(minVotes int) {
	kept := w.Candidates[:0]
	for _, c := range w.Candidates {
		if c.Votes >= minVotes {
			kept = append(kept, c)
		}
	}
	w.Candidates = kept
	sort.Slice(w.Candidates, func(i, j int) bool {
		if w.Candidates[i].Votes != w.Candidates[j].Votes {
			return w.Candidates[i].Votes > w.Candidates[j].Votes
		}
		return w.Candidates[i].TemplateID < w.Candidates[j].TemplateID
	})
}
