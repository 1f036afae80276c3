// Package record defines the Record tagged variant (contact or company) and
// its persistence in the embedded store.
package record

import "time"

// Kind discriminates which shape a Record carries.
type Kind string

const (
	KindContact Kind = "contact"
	KindCompany Kind = "company"
)

// Contact is the business-field payload for Kind == KindContact.
type Contact struct {
	ExternalID      string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Company         string
	Domain          string
	City            string
	State           string
	Industry        string
	JobTitle        string
	Properties      map[string]string
	SourceCreatedAt *time.Time
	SourceUpdatedAt *time.Time
	RetryCount      int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Company is the business-field payload for Kind == KindCompany.
type Company struct {
	ExternalID      string
	Name            string
	Domain          string
	Phone           string
	City            string
	State           string
	Industry        string
	Properties      map[string]string
	SourceCreatedAt *time.Time
	SourceUpdatedAt *time.Time
	RetryCount      int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Record is the tagged variant PairScorer, BlockingIndex, and GoldenSelector
// dispatch on. Exactly one of Contact/Company is non-nil, matching Kind.
type Record struct {
	Kind    Kind
	Contact *Contact
	Company *Company
}

// ExternalID returns the stable id assigned by the source CRM.
func (r Record) ExternalID() string {
	switch r.Kind {
	case KindContact:
		return r.Contact.ExternalID
	case KindCompany:
		return r.Company.ExternalID
	}
	return ""
}

// SourceCreatedAt returns the record's captured creation instant, if any.
func (r Record) SourceCreatedAt() *time.Time {
	switch r.Kind {
	case KindContact:
		return r.Contact.SourceCreatedAt
	case KindCompany:
		return r.Company.SourceCreatedAt
	}
	return nil
}

// SourceUpdatedAt returns the record's captured update instant, if any.
func (r Record) SourceUpdatedAt() *time.Time {
	switch r.Kind {
	case KindContact:
		return r.Contact.SourceUpdatedAt
	case KindCompany:
		return r.Company.SourceUpdatedAt
	}
	return nil
}

// Properties returns the opaque key/value blob preserved verbatim from the
// source CRM.
func (r Record) Properties() map[string]string {
	switch r.Kind {
	case KindContact:
		return r.Contact.Properties
	case KindCompany:
		return r.Company.Properties
	}
	return nil
}

// Field returns the named business field's string value, used by the
// pair scorer and the completeness scorer so they don't need a type switch
// per field.
// Unknown field names return "".
func (r Record) Field(name string) string {
	switch r.Kind {
	case KindContact:
		c := r.Contact
		switch name {
		case "email":
			return c.Email
		case "phone":
			return c.Phone
		case "first_name":
			return c.FirstName
		case "last_name":
			return c.LastName
		case "full_name":
			if c.FirstName == "" || c.LastName == "" {
				return ""
			}
			return c.FirstName + " " + c.LastName
		case "company":
			return c.Company
		case "domain":
			return c.Domain
		case "job_title":
			return c.JobTitle
		case "city":
			return c.City
		case "state":
			return c.State
		case "industry":
			return c.Industry
		}
	case KindCompany:
		c := r.Company
		switch name {
		case "name":
			return c.Name
		case "domain":
			return c.Domain
		case "phone":
			return c.Phone
		case "city":
			return c.City
		case "state":
			return c.State
		case "industry":
			return c.Industry
		}
	}
	return ""
}

// DisplayKey returns a short human-readable label for dry-run previews.
func (r Record) DisplayKey() string {
	switch r.Kind {
	case KindContact:
		name := r.Field("full_name")
		if name == "" {
			name = r.Contact.Email
		}
		if name == "" {
			name = r.Contact.ExternalID
		}
		return name
	case KindCompany:
		if r.Company.Name != "" {
			return r.Company.Name
		}
		return r.Company.Domain
	}
	return r.ExternalID()
}

// ContactFieldWeights are the PairScorer weights for contact records.
var ContactFieldWeights = map[string]float64{
	"email":      1.5,
	"full_name":  1.3,
	"first_name": 1.2,
	"last_name":  1.2,
	"phone":      1.0,
	"company":    0.8,
	"job_title":  0.6,
}

// CompanyFieldWeights are the PairScorer weights for company records.
var CompanyFieldWeights = map[string]float64{
	"name":     1.5,
	"domain":   1.4,
	"phone":    1.0,
	"city":     0.7,
	"state":    0.6,
	"industry": 0.5,
}

// FieldWeights returns the weight table applicable to this record's kind.
func FieldWeights(kind Kind) map[string]float64 {
	if kind == KindCompany {
		return CompanyFieldWeights
	}
	return ContactFieldWeights
}
