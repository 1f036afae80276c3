// Package consolidate implements the GroupMerger component: union-find
// over scored candidate pairs, consolidating every record transitively
// connected by a surviving pair into one group.
package consolidate

import (
	"sort"

	"github.com/kestrelcrm/dedupd/internal/record"
)

// ScoredPair is an edge between two records that survived PairScorer's
// threshold (or an exact-match edge, materialized at score 100 so
// exact and fuzzy matches consolidate through a single union-find pass).
type ScoredPair struct {
	A, B          string
	Score         int
	MatchedFields []string
	FieldScores   map[string]int // per-field raw sub-scores (0..100)
	Exact         bool           // true for an ExactMatcher-derived edge, materialized at score 100
}

// Group is a consolidated, transitively-connected cluster of external ids.
type Group struct {
	Kind          record.Kind
	MemberIDs     []string
	MatchScore    int // arithmetic mean of contributing pairs' scores, rounded
	MatchedFields []string
	FieldScores   map[string]int // per-field maximum across contributing pairs
	AllExact      bool           // every contributing edge was an exact-match edge
}

type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[string]string{}, rank: map[string]int{}}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.rank[x] = 0
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// path compression
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Consolidate runs union-find over pairs and returns one Group per
// transitively-connected component with >= 2 members. Singleton components
// (a record with no surviving edge) are discarded.
func Consolidate(kind record.Kind, pairs []ScoredPair) []Group {
	uf := newUnionFind()
	for _, p := range pairs {
		uf.union(p.A, p.B)
	}

	type accum struct {
		members       map[string]bool
		scoreSum      int
		pairCount     int
		matchedFields map[string]bool
		fieldScores   map[string]int
		allExact      bool
	}

	roots := map[string]*accum{}
	for _, p := range pairs {
		root := uf.find(p.A)
		a, ok := roots[root]
		if !ok {
			a = &accum{members: map[string]bool{}, matchedFields: map[string]bool{}, fieldScores: map[string]int{}, allExact: true}
			roots[root] = a
		}
		a.members[p.A] = true
		a.members[p.B] = true
		a.scoreSum += p.Score
		a.pairCount++
		if !p.Exact {
			a.allExact = false
		}
		for _, f := range p.MatchedFields {
			a.matchedFields[f] = true
		}
		for f, s := range p.FieldScores {
			if s > a.fieldScores[f] {
				a.fieldScores[f] = s
			}
		}
	}

	var groups []Group
	for _, a := range roots {
		if len(a.members) < 2 {
			continue
		}
		members := make([]string, 0, len(a.members))
		for m := range a.members {
			members = append(members, m)
		}
		sort.Strings(members)

		fields := make([]string, 0, len(a.matchedFields))
		for f := range a.matchedFields {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		meanScore := 0
		if a.pairCount > 0 {
			meanScore = (a.scoreSum + a.pairCount/2) / a.pairCount // round to nearest
		}

		groups = append(groups, Group{
			Kind:          kind,
			MemberIDs:     members,
			MatchScore:    meanScore,
			MatchedFields: fields,
			FieldScores:   a.fieldScores,
			AllExact:      a.allExact,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].MemberIDs[0] < groups[j].MemberIDs[0]
	})
	return groups
}
