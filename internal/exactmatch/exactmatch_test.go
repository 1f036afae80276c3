package exactmatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/exactmatch"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func contact(externalID, email, phone, first, last string) record.Record {
	return record.Record{
		Kind: record.KindContact,
		Contact: &record.Contact{
			ExternalID: externalID,
			Email:      email,
			Phone:      phone,
			FirstName:  first,
			LastName:   last,
		},
	}
}

func TestFindGroups_ExactEmail(t *testing.T) {
	records := []record.Record{
		contact("A", "a@x.com", "", "", ""),
		contact("B", "A@X.COM", "", "", ""),
		contact("C", "c@y.com", "", "", ""),
	}

	groups := exactmatch.FindGroups(records, record.KindContact)

	var emailGroups []exactmatch.Group
	for _, g := range groups {
		if g.KeyField == exactmatch.KeyEmail {
			emailGroups = append(emailGroups, g)
		}
	}
	require.Len(t, emailGroups, 1)
	ids := memberIDs(emailGroups[0])
	assert.ElementsMatch(t, []string{"A", "B"}, ids)
}

func TestFindGroups_ExactPhone(t *testing.T) {
	records := []record.Record{
		contact("A", "", "+1 415-555-0100", "", ""),
		contact("B", "", "(415) 555-0100", "", ""),
		contact("C", "", "415 555 0101", "", ""),
	}

	groups := exactmatch.FindGroups(records, record.KindContact)

	var phoneGroups []exactmatch.Group
	for _, g := range groups {
		if g.KeyField == exactmatch.KeyPhone {
			phoneGroups = append(phoneGroups, g)
		}
	}
	require.Len(t, phoneGroups, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, memberIDs(phoneGroups[0]))
}

func TestFindGroups_NinePhoneDigitsIgnored(t *testing.T) {
	records := []record.Record{
		contact("A", "", "555 012 345", "", ""),
		contact("B", "", "555 012 345", "", ""),
	}

	groups := exactmatch.FindGroups(records, record.KindContact)
	for _, g := range groups {
		assert.NotEqual(t, exactmatch.KeyPhone, g.KeyField, "a 9-digit phone must not form an exact phone group")
	}
}

func TestFindGroups_NameOnlyWhenEmailEmpty(t *testing.T) {
	withEmail := []record.Record{
		contact("A", "a@x.com", "", "Jon", "Smith"),
		contact("B", "", "", "Jon", "Smith"),
	}
	groups := exactmatch.FindGroups(withEmail, record.KindContact)
	for _, g := range groups {
		assert.NotEqual(t, exactmatch.KeyName, g.KeyField, "name key only applies when both sides have empty email")
	}

	bothEmpty := []record.Record{
		contact("A", "", "", "Jon", "Smith"),
		contact("B", "", "", "Jon", "Smith"),
	}
	groups = exactmatch.FindGroups(bothEmpty, record.KindContact)
	var nameGroups []exactmatch.Group
	for _, g := range groups {
		if g.KeyField == exactmatch.KeyName {
			nameGroups = append(nameGroups, g)
		}
	}
	require.Len(t, nameGroups, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, memberIDs(nameGroups[0]))
}

func TestFindGroups_CompanyDomain(t *testing.T) {
	records := []record.Record{
		{Kind: record.KindCompany, Company: &record.Company{ExternalID: "A", Domain: "www.acme.com"}},
		{Kind: record.KindCompany, Company: &record.Company{ExternalID: "B", Domain: "http://acme.com/about"}},
		{Kind: record.KindCompany, Company: &record.Company{ExternalID: "C", Domain: "globex.com"}},
	}

	groups := exactmatch.FindGroups(records, record.KindCompany)
	require.Len(t, groups, 1)
	assert.Equal(t, exactmatch.KeyDomain, groups[0].KeyField)
	assert.ElementsMatch(t, []string{"A", "B"}, memberIDs(groups[0]))
}

func TestFindGroups_SingletonsDiscarded(t *testing.T) {
	records := []record.Record{
		contact("A", "solo@x.com", "", "", ""),
	}
	groups := exactmatch.FindGroups(records, record.KindContact)
	assert.Empty(t, groups)
}

func memberIDs(g exactmatch.Group) []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ExternalID())
	}
	return ids
}
