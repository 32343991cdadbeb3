package flatten

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/lobbyxml/internal/document"
	"github.com/rpattn/lobbyxml/internal/domain"
)

func parseDocument(t *testing.T, name, source string) *document.Document {
	t.Helper()
	doc, err := document.Parse(context.Background(), name, strings.NewReader(source))
	if err != nil {
		t.Fatalf("failed to parse %s: %v", name, err)
	}
	return doc
}

func TestFlattenSingleFilingWithContributions(t *testing.T) {
	doc := parseDocument(t, "2008_1.xml", `<PublicFilings>
  <Filing ID="F1" Year="2008" Received="2008-07-30T14:01:00" Type="MID-YEAR REPORT" Period="Mid-Year">
    <Registrant RegistrantID="42" RegistrantName="Acme&#x0D;&#x0A;Lobbying" Address="1 Main St" RegistrantCountry="USA" />
    <Contributions>
      <Contribution Contributor="Acme PAC" ContributionType="FECA" Payee="Friends of X" Honoree="X" Amount="500" ContributionDate="2008-03-01" />
      <Contribution Contributor="Acme PAC" ContributionType="FECA" Payee="Friends of Y" Honoree="Y" Amount="1200" ContributionDate="2008-04-01" />
    </Contributions>
  </Filing>
</PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("unexpected flatten error: %v", err)
	}

	if len(result.Filings) != 1 {
		t.Fatalf("expected 1 filing, got %d", len(result.Filings))
	}
	if len(result.Lobbyists) != 0 {
		t.Fatalf("expected 0 lobbyists, got %d", len(result.Lobbyists))
	}
	if len(result.Contributions) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(result.Contributions))
	}

	filing := result.Filings[0]
	if filing.FilingID != 1 {
		t.Fatalf("expected filing_id 1, got %d", filing.FilingID)
	}
	if filing.SoprFilingID != "F1" || filing.Year != "2008" {
		t.Fatalf("unexpected filing attributes: %+v", filing)
	}
	if filing.RegistrantName != "Acme Lobbying" {
		t.Fatalf("expected registrant name joined by a single space, got %q", filing.RegistrantName)
	}
	if filing.SourceDocument != "2008_1.xml" {
		t.Fatalf("expected source document 2008_1.xml, got %q", filing.SourceDocument)
	}

	amounts := []string{"500", "1200"}
	for i, contribution := range result.Contributions {
		if contribution.FilingID != 1 {
			t.Errorf("contribution %d: expected filing_id 1, got %d", i, contribution.FilingID)
		}
		if contribution.Amount != amounts[i] {
			t.Errorf("contribution %d: expected amount %s, got %s", i, amounts[i], contribution.Amount)
		}
		if contribution.SoprFilingID != "F1" {
			t.Errorf("contribution %d: expected sopr_filing_id F1, got %s", i, contribution.SoprFilingID)
		}
	}
}

func TestFlattenMissingTypeUsesPlaceholder(t *testing.T) {
	doc := parseDocument(t, "a.xml", `<PublicFilings>
  <Filing ID="F1" Year="2008" Received="2008-07-30" Period="Q2">
    <Registrant RegistrantID="42" RegistrantName="Acme" Address="1 Main St" RegistrantCountry="USA" />
  </Filing>
</PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("unexpected flatten error: %v", err)
	}

	filing := result.Filings[0]
	if filing.Type != domain.Placeholder {
		t.Fatalf("expected type placeholder, got %q", filing.Type)
	}
	for _, field := range filing.Fields() {
		if field == "" {
			t.Fatalf("expected every other column populated: %+v", filing)
		}
	}
	if filing.Period != "Q2" || filing.Received != "2008-07-30" || filing.RegistrantName != "Acme" {
		t.Fatalf("unexpected filing attributes: %+v", filing)
	}
}

func TestFlattenFilingWithoutRegistrant(t *testing.T) {
	doc := parseDocument(t, "a.xml", `<PublicFilings><Filing ID="F9" Year="2009" Type="Q1" /></PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("unexpected flatten error: %v", err)
	}
	if len(result.Filings) != 1 || len(result.Lobbyists) != 0 || len(result.Contributions) != 0 {
		t.Fatalf("expected exactly one bare filing, got %+v", result)
	}

	filing := result.Filings[0]
	for _, value := range []string{filing.RegistrantID, filing.RegistrantName, filing.RegistrantAddress, filing.RegistrantCountry} {
		if value != domain.Placeholder {
			t.Fatalf("expected registrant placeholders, got %+v", filing)
		}
	}
	if filing.SoprFilingID != "F9" || filing.Year != "2009" || filing.Type != "Q1" {
		t.Fatalf("expected filing attributes untouched, got %+v", filing)
	}
}

func TestFlattenLobbyistsDirectAndGrouped(t *testing.T) {
	doc := parseDocument(t, "a.xml", `<PublicFilings>
  <Filing ID="F1">
    <Lobbyists>
      <Lobbyist LobbyistName="Jane&#x0D;&#x0A;Roe" />
      <Lobbyist LobbyistName="John Doe" />
    </Lobbyists>
  </Filing>
  <Filing ID="F2">
    <Lobbyist LobbyistName="Solo" />
  </Filing>
</PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("unexpected flatten error: %v", err)
	}
	if len(result.Lobbyists) != 3 {
		t.Fatalf("expected 3 lobbyists, got %d", len(result.Lobbyists))
	}

	want := []struct {
		id   int64
		name string
	}{{1, "Jane Roe"}, {1, "John Doe"}, {2, "Solo"}}
	for i, lobbyist := range result.Lobbyists {
		if lobbyist.FilingID != want[i].id || lobbyist.LobbyistName != want[i].name {
			t.Errorf("lobbyist %d: expected %+v, got %+v", i, want[i], lobbyist)
		}
	}
}

func TestFlattenIDsContiguousAcrossDocuments(t *testing.T) {
	first := parseDocument(t, "1.xml", `<PublicFilings><Filing ID="A"/><Filing ID="B"><Lobbyist LobbyistName="L"/></Filing></PublicFilings>`)
	second := parseDocument(t, "2.xml", `<PublicFilings><Filing ID="C"><Contributions><Contribution Amount="1"/></Contributions></Filing></PublicFilings>`)

	flattener := NewFlattener(GroupLenient)
	var counter Counter

	var filings []domain.Filing
	known := map[int64]int{}
	var children []int64

	for _, doc := range []*document.Document{first, second} {
		result, err := flattener.Flatten(doc, &counter)
		if err != nil {
			t.Fatalf("unexpected flatten error: %v", err)
		}
		filings = append(filings, result.Filings...)
		for _, l := range result.Lobbyists {
			children = append(children, l.FilingID)
		}
		for _, c := range result.Contributions {
			children = append(children, c.FilingID)
		}
	}

	for i, filing := range filings {
		if filing.FilingID != int64(i+1) {
			t.Fatalf("expected filing_id %d at position %d, got %d", i+1, i, filing.FilingID)
		}
		known[filing.FilingID]++
	}
	if counter.Last() != 3 {
		t.Fatalf("expected counter at 3, got %d", counter.Last())
	}
	for _, id := range children {
		if known[id] != 1 {
			t.Fatalf("child references filing_id %d which matches %d filings", id, known[id])
		}
	}
	if filings[2].SourceDocument != "2.xml" {
		t.Fatalf("expected third filing from 2.xml, got %s", filings[2].SourceDocument)
	}
}

const malformedGroup = `<PublicFilings>
  <Filing ID="F1">
    <Lobbyist LobbyistName="Kept" />
    <Contributions>
      <Contribution Amount="10" />
      <Note Text="unexpected" />
      <Contribution Amount="20" />
    </Contributions>
  </Filing>
</PublicFilings>`

func TestFlattenMalformedGroupLenient(t *testing.T) {
	doc := parseDocument(t, "a.xml", malformedGroup)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("lenient policy should not fail: %v", err)
	}
	if len(result.Contributions) != 2 {
		t.Fatalf("expected the 2 real contributions, got %d", len(result.Contributions))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(result.Warnings))
	}
}

func TestFlattenMalformedGroupStrict(t *testing.T) {
	doc := parseDocument(t, "a.xml", malformedGroup)

	var counter Counter
	result, err := NewFlattener(GroupStrict).Flatten(doc, &counter)

	var groupErr *GroupError
	if !errors.As(err, &groupErr) {
		t.Fatalf("expected *GroupError, got %v", err)
	}
	if groupErr.FilingID != 1 || groupErr.SoprFilingID != "F1" || groupErr.Element != "Note" {
		t.Fatalf("unexpected group error: %+v", groupErr)
	}
	if len(result.Filings) != 1 || len(result.Lobbyists) != 1 {
		t.Fatalf("expected filing and lobbyist still emitted, got %+v", result)
	}
}

func TestFlattenAbsentGroupIsNotAnError(t *testing.T) {
	doc := parseDocument(t, "a.xml", `<PublicFilings><Filing ID="F1"><Contributions/></Filing></PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupStrict).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("empty contributions group should not fail: %v", err)
	}
	if len(result.Contributions) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("expected no contributions and no warnings, got %+v", result)
	}
}

func TestParseGroupPolicy(t *testing.T) {
	if policy, err := ParseGroupPolicy(""); err != nil || policy != GroupLenient {
		t.Fatalf("expected lenient default, got %q (%v)", policy, err)
	}
	if policy, err := ParseGroupPolicy("strict"); err != nil || policy != GroupStrict {
		t.Fatalf("expected strict, got %q (%v)", policy, err)
	}
	if _, err := ParseGroupPolicy("loose"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestFlattenKeepsEscapedEntityTextLiteral(t *testing.T) {
	doc := parseDocument(t, "2008_1.xml", `<PublicFilings>
  <Filing ID="F1">
    <Registrant RegistrantName="Acme" Address="Suite &amp;lt;4&amp;gt;&#x0D;&#x0A;1 Main St" RegistrantCountry="B&amp;GT Holdings" />
  </Filing>
</PublicFilings>`)

	var counter Counter
	result, err := NewFlattener(GroupLenient).Flatten(doc, &counter)
	if err != nil {
		t.Fatalf("unexpected flatten error: %v", err)
	}

	filing := result.Filings[0]
	if filing.RegistrantCountry != "B&GT Holdings" {
		t.Fatalf("expected country decoded once, got %q", filing.RegistrantCountry)
	}
	if filing.RegistrantAddress != "Suite &lt;4&gt; 1 Main St" {
		t.Fatalf("expected address decoded once, got %q", filing.RegistrantAddress)
	}
}
