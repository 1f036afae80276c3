// Package importsrc provides bulk-import adapters that turn external file
// formats into record.Record values ready for record.Store.UpsertBatch,
// outside the primary CRM FetchAll path.
package importsrc

import (
	"io"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// VCardContacts decodes a stream of vCards into contact records. Each card
// becomes one Contact keyed by its UID (falling back to its formatted name
// if UID is absent); cards without either are skipped. This is an optional
// companion to the CRM's fetch_all path, for operators migrating contacts
// from an address book export.
func VCardContacts(r io.Reader) ([]record.Record, error) {
	dec := vcard.NewDecoder(r)

	var out []record.Record
	for {
		card, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "decode vcard", err)
		}

		c, ok := contactFromCard(card)
		if !ok {
			continue
		}
		out = append(out, record.Record{Kind: record.KindContact, Contact: c})
	}

	return out, nil
}

func contactFromCard(card vcard.Card) (*record.Contact, bool) {
	externalID := card.Value(vcard.FieldUID)
	name := card.Value(vcard.FieldFormattedName)
	if externalID == "" {
		externalID = name
	}
	if externalID == "" {
		return nil, false
	}

	first, last := splitName(card)

	return &record.Contact{
		ExternalID: externalID,
		FirstName:  first,
		LastName:   last,
		Email:      card.PreferredValue(vcard.FieldEmail),
		Phone:      card.PreferredValue(vcard.FieldTelephone),
		Company:    card.Value(vcard.FieldOrganization),
		JobTitle:   card.Value(vcard.FieldTitle),
	}, true
}

func splitName(card vcard.Card) (first, last string) {
	if n := card.Name(); n != nil {
		return n.GivenName, n.FamilyName
	}
	fn := card.Value(vcard.FieldFormattedName)
	parts := strings.SplitN(fn, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return fn, ""
}
