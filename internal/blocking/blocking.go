// Package blocking implements the BlockingIndex component: assigning
// short blocking tags to each record and turning same-bucket
// membership into candidate pairs for the PairScorer.
package blocking

import (
	"strings"

	"github.com/kestrelcrm/dedupd/internal/normalize"
	"github.com/kestrelcrm/dedupd/internal/record"
)

const unkeyedTag = "unkeyed"

// Tags returns the 0..N blocking tags for a record.
func Tags(r record.Record) []string {
	switch r.Kind {
	case record.KindContact:
		return contactTags(r.Contact)
	case record.KindCompany:
		return companyTags(r.Company)
	}
	return nil
}

func contactTags(c *record.Contact) []string {
	var tags []string

	if email := normalize.Email(c.Email); email != "" {
		if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
			tags = append(tags, "email-domain:"+email[at+1:])
		}
	}

	last := strings.ToLower(strings.TrimSpace(c.LastName))
	if len(last) >= 2 {
		n := 3
		if len(last) < n {
			n = len(last)
		}
		tags = append(tags, "lastname-pfx:"+last[:n])
	}

	if suffix, ok := phoneSuffix(c.Phone); ok {
		tags = append(tags, "phone-suffix:"+suffix)
	}

	if len(tags) == 0 {
		tags = append(tags, unkeyedTag)
	}
	return tags
}

func companyTags(c *record.Company) []string {
	var tags []string

	if domain := normalize.Domain(c.Domain); domain != "" {
		tags = append(tags, "domain:"+domain)
	}

	stripped := normalize.String(c.Name)
	stripped = strings.ReplaceAll(stripped, " ", "")
	if len(stripped) >= 3 {
		n := 4
		if len(stripped) < n {
			n = len(stripped)
		}
		tags = append(tags, "name-pfx:"+stripped[:n])
	}

	if suffix, ok := phoneSuffix(c.Phone); ok {
		tags = append(tags, "phone-suffix:"+suffix)
	}

	if len(tags) == 0 {
		tags = append(tags, unkeyedTag)
	}
	return tags
}

func phoneSuffix(raw string) (string, bool) {
	p := normalize.NormalizePhone(raw)
	if len(p.Full) < 7 {
		return "", false
	}
	return p.Full[len(p.Full)-7:], true
}

// Buckets maps a blocking tag to the records carrying it.
type Buckets map[string][]record.Record

// Build assigns tags to every record and groups them into buckets.
func Build(records []record.Record) Buckets {
	buckets := Buckets{}
	for _, r := range records {
		for _, tag := range Tags(r) {
			buckets[tag] = append(buckets[tag], r)
		}
	}
	return buckets
}

// Pair is an unordered candidate pair of records sharing a bucket.
type Pair struct {
	A, B record.Record
}

// CandidatePairs emits one Pair per unordered id combination across all
// buckets with >= 2 members, deduplicated so a pair sharing multiple
// blocking tags is only emitted once. unkeyedCap, if > 0, caps how many
// records from the "unkeyed" bucket are compared against each other,
// bounding the worst-case O(n^2) blowup for sparse records.
func CandidatePairs(buckets Buckets, unkeyedCap int) []Pair {
	seen := map[[2]string]bool{}
	var pairs []Pair

	for tag, members := range buckets {
		if len(members) < 2 {
			continue
		}
		if tag == unkeyedTag && unkeyedCap > 0 && len(members) > unkeyedCap {
			members = members[:unkeyedCap]
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				key := pairKey(members[i].ExternalID(), members[j].ExternalID())
				if seen[key] {
					continue
				}
				seen[key] = true
				pairs = append(pairs, Pair{A: members[i], B: members[j]})
			}
		}
	}
	return pairs
}

func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
