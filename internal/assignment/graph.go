package assignment

import (
	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

// graph is an in-memory snapshot of the assignment state taken at the start
// of a draw. Candidate selection and the lookahead run against it; the
// datastore has the final say at commit time.
type graph struct {
	ids      []int64
	claimed  map[int64]bool
	picked   map[int64]bool
	excludes map[int64]map[int64]bool
}

func newGraph(participants []models.Participant, pairs []storage.ExclusionPair) *graph {
	g := &graph{
		ids:      make([]int64, 0, len(participants)),
		claimed:  make(map[int64]bool),
		picked:   make(map[int64]bool),
		excludes: make(map[int64]map[int64]bool),
	}
	for _, p := range participants {
		g.ids = append(g.ids, p.ID)
		if p.AssignedToID != nil {
			g.claimed[*p.AssignedToID] = true
			g.picked[p.ID] = true
		}
	}
	for _, e := range pairs {
		if g.excludes[e.ParticipantID] == nil {
			g.excludes[e.ParticipantID] = make(map[int64]bool)
		}
		g.excludes[e.ParticipantID][e.ExcludedParticipantID] = true
	}
	return g
}

func (g *graph) allowed(from, to int64) bool {
	return from != to && !g.excludes[from][to]
}

// candidates lists who drawer may receive: not themselves, not already
// claimed, not excluded by drawer.
func (g *graph) candidates(drawer int64) []int64 {
	var out []int64
	for _, id := range g.ids {
		if !g.claimed[id] && g.allowed(drawer, id) {
			out = append(out, id)
		}
	}
	return out
}

// strands reports whether giving recipient to drawer would leave some other
// participant who has not picked yet without any option.
func (g *graph) strands(drawer, recipient int64) bool {
	for _, other := range g.ids {
		if other == drawer || g.picked[other] {
			continue
		}
		ok := false
		for _, id := range g.ids {
			if id == recipient || g.claimed[id] {
				continue
			}
			if g.allowed(other, id) {
				ok = true
				break
			}
		}
		if !ok {
			return true
		}
	}
	return false
}

// safe filters candidates through the one-step lookahead.
func (g *graph) safe(drawer int64, candidates []int64) []int64 {
	var out []int64
	for _, c := range candidates {
		if !g.strands(drawer, c) {
			out = append(out, c)
		}
	}
	return out
}

// staticOptions counts who p could give to ignoring assignment state.
func (g *graph) staticOptions(p int64) int {
	n := 0
	for _, id := range g.ids {
		if g.allowed(p, id) {
			n++
		}
	}
	return n
}
