// Package exactmatch implements the ExactMatcher component: SQL-adjacent
// grouping on normalized identity keys, operating on records already
// loaded from the Store.
package exactmatch

import (
	"sort"
	"strings"

	"github.com/kestrelcrm/dedupd/internal/normalize"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// KeyField names the identity field a Group was produced from.
type KeyField string

const (
	KeyEmail  KeyField = "email"
	KeyPhone  KeyField = "phone"
	KeyName   KeyField = "name"
	KeyDomain KeyField = "domain"
)

// Group is a set of records sharing one normalized identity key value.
// ExactMatcher groups carry implicit confidence "high" and match_score 100
// (on the PairScorer's 0..100 scale; DedupEngine converts to [0,1] before
// persistence).
type Group struct {
	KeyField KeyField
	KeyValue string
	Members  []record.Record
}

// FindGroups returns one Group per identity-key value with two or more
// members. A record may appear in multiple groups (e.g. by email and by
// phone); GroupMerger is responsible for consolidating overlapping
// membership.
func FindGroups(records []record.Record, kind record.Kind) []Group {
	switch kind {
	case record.KindContact:
		return findContactGroups(records)
	case record.KindCompany:
		return findCompanyGroups(records)
	}
	return nil
}

func findContactGroups(records []record.Record) []Group {
	byEmail := map[string][]record.Record{}
	byPhone := map[string][]record.Record{}
	byName := map[string][]record.Record{}

	for _, r := range records {
		c := r.Contact
		if c == nil {
			continue
		}

		if email := normalize.Email(c.Email); email != "" {
			byEmail[email] = append(byEmail[email], r)
		}

		if phone := normalize.NormalizePhone(c.Phone); phone.Usable() {
			// National drops the leading "1" of an 11-digit number, so a
			// "+1 ..." number and its bare 10-digit form land on the same
			// key; other country codes stay in the key. Full is used only
			// when National is under 10 digits.
			key := phone.National
			if len(key) < 10 {
				key = phone.Full
			}
			if len(key) >= 10 {
				byPhone[key] = append(byPhone[key], r)
			}
		}

		if c.Email == "" {
			first := strings.ToLower(strings.TrimSpace(c.FirstName))
			last := strings.ToLower(strings.TrimSpace(c.LastName))
			if first != "" && last != "" {
				key := first + " " + last
				if len(key) > 3 {
					byName[key] = append(byName[key], r)
				}
			}
		}
	}

	var groups []Group
	groups = append(groups, collect(KeyEmail, byEmail)...)
	groups = append(groups, collect(KeyPhone, byPhone)...)
	groups = append(groups, collect(KeyName, byName)...)
	return groups
}

func findCompanyGroups(records []record.Record) []Group {
	byDomain := map[string][]record.Record{}

	for _, r := range records {
		c := r.Company
		if c == nil {
			continue
		}
		if domain := normalize.Domain(c.Domain); domain != "" {
			byDomain[domain] = append(byDomain[domain], r)
		}
	}

	return collect(KeyDomain, byDomain)
}

func collect(field KeyField, buckets map[string][]record.Record) []Group {
	var groups []Group
	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sorted := append([]record.Record(nil), members...)
		sortByUpdatedAtDesc(sorted)
		groups = append(groups, Group{KeyField: field, KeyValue: key, Members: sorted})
	}
	// Deterministic ordering across runs, independent of map iteration.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].KeyField != groups[j].KeyField {
			return groups[i].KeyField < groups[j].KeyField
		}
		return groups[i].KeyValue < groups[j].KeyValue
	})
	return groups
}

func sortByUpdatedAtDesc(records []record.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].SourceUpdatedAt(), records[j].SourceUpdatedAt()
		if a == nil && b == nil {
			return false
		}
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}
