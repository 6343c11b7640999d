package importer

import (
	"encoding/json"
	"fmt"
)

// BitwardenParser parses Bitwarden JSON export files (unencrypted).
// Folders nest with "/" in their names.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

// Bitwarden custom field types.
const (
	bitwardenFieldText    = 0
	bitwardenFieldHidden  = 1
	bitwardenFieldBoolean = 2
)

// bitwardenExport represents the top-level Bitwarden export structure.
type bitwardenExport struct {
	Encrypted   bool                  `json:"encrypted"`
	Items       []bitwardenItem       `json:"items"`
	Folders     []bitwardenFolder     `json:"folders"`
	Collections []bitwardenCollection `json:"collections"`
}

// bitwardenFolder represents a Bitwarden folder.
type bitwardenFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// bitwardenCollection represents an organization collection.
type bitwardenCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// bitwardenItem represents a Bitwarden vault item.
type bitwardenItem struct {
	Type          int                    `json:"type"`
	Name          string                 `json:"name"`
	Notes         string                 `json:"notes"`
	Favorite      bool                   `json:"favorite"`
	FolderID      *string                `json:"folderId"`
	CollectionIDs []string               `json:"collectionIds"`
	Login         *bitwardenLogin        `json:"login"`
	Card          *bitwardenCard         `json:"card"`
	Identity      *bitwardenIdentity     `json:"identity"`
	Fields        []bitwardenCustomField `json:"fields"`
}

// bitwardenLogin represents Bitwarden login data.
type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

// bitwardenURI represents a Bitwarden URI entry.
type bitwardenURI struct {
	URI string `json:"uri"`
}

// bitwardenCard represents Bitwarden card data.
type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

// bitwardenIdentity represents Bitwarden identity data.
type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

// bitwardenCustomField represents a Bitwarden custom field.
type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data.
func (p *BitwardenParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported: export as unencrypted JSON")
	}

	folders := make(map[string]string)
	for _, f := range export.Folders {
		folders[f.ID] = f.Name
	}
	collections := make(map[string]string)
	for _, c := range export.Collections {
		collections[c.ID] = c.Name
	}

	// Track for title fallback
	itemCounter := 1

	for i := range export.Items {
		item := &export.Items[i]
		entry, warning := p.parseItem(item, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("item %d (%s): %s", i+1, item.Name, warning))
		}
		if entry == nil {
			if warning == "" {
				result.Skipped = append(result.Skipped, SkippedItem{
					OriginalName: item.Name,
					Reason:       "no useful data",
				})
			}
			continue
		}

		if item.FolderID != nil {
			applyFolder(entry, SplitFolderPath(folders[*item.FolderID], "/"), opts)
		}
		for _, id := range item.CollectionIDs {
			if name := collections[id]; name != "" {
				entry.Tags = append(entry.Tags, name)
			}
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

// parseItem parses a single Bitwarden item. A nil entry means the item
// carried nothing worth importing.
func (p *BitwardenParser) parseItem(item *bitwardenItem, itemCounter *int) (*ImportedEntry, string) {
	entry := &ImportedEntry{
		Notes:    item.Notes,
		Favorite: item.Favorite,
	}

	switch item.Type {
	case bitwardenTypeLogin:
		p.parseLogin(item, entry)
	case bitwardenTypeSecureNote:
		// notes only
	case bitwardenTypeCard:
		p.parseCard(item, entry)
	case bitwardenTypeIdentity:
		p.parseIdentity(item, entry)
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", item.Type)
	}

	for _, cf := range item.Fields {
		// hidden fields are protected; text and boolean are not
		protected := cf.Type == bitwardenFieldHidden
		entry.AddField(cf.Name, cf.Value, protected)
	}

	if entry.Username == "" && entry.Password == "" && entry.URL == "" &&
		IsEmptyOrWhitespace(entry.Notes) && len(entry.CustomFields) == 0 {
		return nil, ""
	}

	entry.Title = titleOrFallback(item.Name, entry.URL, itemCounter)
	return entry, ""
}

// parseLogin fills login credentials. The first URI becomes the URL, the
// rest become custom fields.
func (p *BitwardenParser) parseLogin(item *bitwardenItem, entry *ImportedEntry) {
	login := item.Login
	if login == nil {
		return
	}

	entry.Username = login.Username
	entry.Password = login.Password
	entry.AddField(FieldTOTP, login.TOTP, true)

	for i, uri := range login.URIs {
		if uri.URI == "" {
			continue
		}
		if entry.URL == "" {
			entry.URL = uri.URI
			continue
		}
		entry.AddField(fmt.Sprintf("URL %d", i+1), uri.URI, false)
	}
}

// parseCard maps card data to custom fields. Number and code are protected.
func (p *BitwardenParser) parseCard(item *bitwardenItem, entry *ImportedEntry) {
	card := item.Card
	if card == nil {
		return
	}

	entry.Username = card.CardholderName
	entry.AddField("Card number", card.Number, true)
	entry.AddField("Expiry month", card.ExpMonth, false)
	entry.AddField("Expiry year", card.ExpYear, false)
	entry.AddField("Security code", card.Code, true)
	entry.AddField("Brand", card.Brand, false)
}

// parseIdentity maps identity data to custom fields. Personal data is
// protected.
func (p *BitwardenParser) parseIdentity(item *bitwardenItem, entry *ImportedEntry) {
	id := item.Identity
	if id == nil {
		return
	}

	entry.Username = id.Username

	entry.AddField("Honorific", id.Title, false)
	entry.AddField("Company", id.Company, false)
	entry.AddField("State", id.State, false)
	entry.AddField("Country", id.Country, false)

	entry.AddField("First name", id.FirstName, true)
	entry.AddField("Middle name", id.MiddleName, true)
	entry.AddField("Last name", id.LastName, true)
	entry.AddField("Email", id.Email, true)
	entry.AddField("Phone", id.Phone, true)
	entry.AddField("Address 1", id.Address1, true)
	entry.AddField("Address 2", id.Address2, true)
	entry.AddField("Address 3", id.Address3, true)
	entry.AddField("City", id.City, true)
	entry.AddField("Postal code", id.PostalCode, true)
	entry.AddField("SSN", id.SSN, true)
	entry.AddField("Passport", id.PassportNumber, true)
	entry.AddField("License", id.LicenseNumber, true)
}
