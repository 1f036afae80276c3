package blocking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelcrm/dedupd/internal/blocking"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func TestTags_Contact(t *testing.T) {
	r := record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "A",
		Email:      "jon@acme.com",
		LastName:   "Smith",
		Phone:      "+1 415-555-0100",
	}}
	tags := blocking.Tags(r)
	assert.Contains(t, tags, "email-domain:acme.com")
	assert.Contains(t, tags, "lastname-pfx:smi")
	assert.Contains(t, tags, "phone-suffix:5550100")
}

func TestTags_ContactUnkeyed(t *testing.T) {
	r := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A"}}
	tags := blocking.Tags(r)
	assert.Equal(t, []string{"unkeyed"}, tags)
}

func TestTags_Company(t *testing.T) {
	r := record.Record{Kind: record.KindCompany, Company: &record.Company{
		ExternalID: "A",
		Domain:     "acme.com",
		Name:       "Acme Corp",
		Phone:      "415-555-0100",
	}}
	tags := blocking.Tags(r)
	assert.Contains(t, tags, "domain:acme.com")
	assert.Contains(t, tags, "name-pfx:acme")
	assert.Contains(t, tags, "phone-suffix:5550100")
}

func TestCandidatePairs_DedupesAcrossSharedTags(t *testing.T) {
	a := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "jon@acme.com", LastName: "Smith"}}
	b := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "jon2@acme.com", LastName: "Smith"}}

	buckets := blocking.Build([]record.Record{a, b})
	pairs := blocking.CandidatePairs(buckets, 0)

	// A and B share both "email-domain:acme.com" and "lastname-pfx:smi" but
	// must only be scored once.
	assert.Len(t, pairs, 1)
}

func TestCandidatePairs_SingleMemberBucketProducesNoPairs(t *testing.T) {
	a := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "solo@acme.com"}}
	buckets := blocking.Build([]record.Record{a})
	pairs := blocking.CandidatePairs(buckets, 0)
	assert.Empty(t, pairs)
}

func TestCandidatePairs_UnkeyedCap(t *testing.T) {
	var records []record.Record
	for i := 0; i < 10; i++ {
		records = append(records, record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: string(rune('A' + i))}})
	}
	buckets := blocking.Build(records)
	uncapped := blocking.CandidatePairs(buckets, 0)
	capped := blocking.CandidatePairs(buckets, 3)
	assert.Greater(t, len(uncapped), len(capped))
}
