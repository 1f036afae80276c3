package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/record"
	"github.com/kestrelcrm/dedupd/internal/scoring"
)

func contact(externalID, first, last, company string) record.Record {
	return record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: externalID, FirstName: first, LastName: last, Company: company,
	}}
}

func TestScore_Symmetric(t *testing.T) {
	a := contact("A", "Jon", "Smith", "Acme")
	b := contact("B", "John", "Smith", "Acme")

	ab := scoring.Score(a, b)
	ba := scoring.Score(b, a)
	assert.Equal(t, ab.Composite, ba.Composite)
}

func TestScore_SelfMatchIsPerfect(t *testing.T) {
	a := contact("A", "Jon", "Smith", "Acme")
	result := scoring.Score(a, a)
	assert.Equal(t, 100, result.Composite)
}

func TestScore_DifferentKindsReturnZero(t *testing.T) {
	c := contact("A", "Jon", "Smith", "Acme")
	co := record.Record{Kind: record.KindCompany, Company: &record.Company{ExternalID: "B", Name: "Acme"}}
	result := scoring.Score(c, co)
	assert.Equal(t, scoring.Result{}, result)
}

func TestScore_FuzzyNameWithinBlocking(t *testing.T) {
	a := contact("A", "Jon", "Smith", "Acme")
	b := contact("B", "John", "Smith", "Acme")
	c := contact("C", "Jane", "Doe", "Globex")

	ab := scoring.Score(a, b)
	require.GreaterOrEqual(t, ab.Composite, 80)
	assert.Contains(t, ab.MatchedFields, "last_name")
	assert.Contains(t, ab.MatchedFields, "full_name")
	assert.Contains(t, ab.MatchedFields, "company")

	ac := scoring.Score(a, c)
	assert.Less(t, ac.Composite, 80)
}

func TestScore_EmptyFieldOmittedFromComposite(t *testing.T) {
	a := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}
	b := record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "a@x.com"}}

	result := scoring.Score(a, b)
	assert.Equal(t, 100, result.Composite)
	require.Len(t, result.FieldScores, 1)
	assert.Equal(t, "email", result.FieldScores[0].Field)
}

func TestRawStringScore(t *testing.T) {
	assert.Equal(t, 100, scoring.RawStringScore("acme", "acme"))
	assert.Equal(t, 100, scoring.RawStringScore("", ""))
	assert.Less(t, scoring.RawStringScore("acme", "zzzz"), 50)
}
