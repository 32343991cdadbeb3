package domain

import "strconv"

// Placeholder stands in for any attribute the source document did not carry.
const Placeholder = "null"

// Filing is one <Filing> element flattened together with its embedded registrant.
type Filing struct {
	FilingID          int64  `json:"filing_id"`
	SourceDocument    string `json:"source_document"`
	SoprFilingID      string `json:"sopr_filing_id"`
	Year              string `json:"year"`
	Received          string `json:"received"`
	Type              string `json:"type"`
	Period            string `json:"period"`
	RegistrantID      string `json:"registrant_id"`
	RegistrantName    string `json:"registrant_name"`
	RegistrantAddress string `json:"registrant_address"`
	RegistrantCountry string `json:"registrant_country"`
}

// Fields returns the record in FilingRelation column order.
func (f Filing) Fields() []string {
	return []string{
		strconv.FormatInt(f.FilingID, 10),
		f.SourceDocument,
		f.SoprFilingID,
		f.Year,
		f.Received,
		f.Type,
		f.Period,
		f.RegistrantID,
		f.RegistrantName,
		f.RegistrantAddress,
		f.RegistrantCountry,
	}
}

// Lobbyist is a named individual attached to a filing.
type Lobbyist struct {
	FilingID       int64  `json:"filing_id"`
	SourceDocument string `json:"source_document"`
	SoprFilingID   string `json:"sopr_filing_id"`
	LobbyistName   string `json:"lobbyist_name"`
}

// Fields returns the record in LobbyistRelation column order.
func (l Lobbyist) Fields() []string {
	return []string{
		strconv.FormatInt(l.FilingID, 10),
		l.SourceDocument,
		l.SoprFilingID,
		l.LobbyistName,
	}
}

// Contribution is a single disclosed political contribution attached to a filing.
type Contribution struct {
	FilingID         int64  `json:"filing_id"`
	SourceDocument   string `json:"source_document"`
	SoprFilingID     string `json:"sopr_filing_id"`
	Contributor      string `json:"contributor"`
	ContributionType string `json:"contribution_type"`
	Payee            string `json:"payee"`
	Honoree          string `json:"honoree"`
	Amount           string `json:"amount"`
	ContributionDate string `json:"contribution_date"`
}

// Fields returns the record in ContributionRelation column order.
func (c Contribution) Fields() []string {
	return []string{
		strconv.FormatInt(c.FilingID, 10),
		c.SourceDocument,
		c.SoprFilingID,
		c.Contributor,
		c.ContributionType,
		c.Payee,
		c.Honoree,
		c.Amount,
		c.ContributionDate,
	}
}
