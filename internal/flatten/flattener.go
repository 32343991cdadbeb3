// Package flatten turns parsed disclosure documents into flat filing, lobbyist
// and contribution records.
package flatten

import (
	"fmt"

	"github.com/rpattn/lobbyxml/internal/document"
	"github.com/rpattn/lobbyxml/internal/domain"
)

// Counter hands out run-scoped filing identifiers starting at 1. One Counter is
// owned by whoever drives a run; it is not safe for concurrent use.
type Counter struct {
	last int64
}

// Next returns the next identifier.
func (c *Counter) Next() int64 {
	c.last++
	return c.last
}

// Last returns the most recently issued identifier, 0 if none.
func (c *Counter) Last() int64 {
	return c.last
}

// GroupPolicy decides what happens when a contributions container holds
// elements that are not contributions.
type GroupPolicy string

const (
	// GroupLenient skips the unexpected elements and records a warning.
	GroupLenient GroupPolicy = "lenient"
	// GroupStrict reports a *GroupError for the document.
	GroupStrict GroupPolicy = "strict"
)

// ParseGroupPolicy validates a configured policy name.
func ParseGroupPolicy(value string) (GroupPolicy, error) {
	switch GroupPolicy(value) {
	case GroupLenient, GroupStrict:
		return GroupPolicy(value), nil
	case "":
		return GroupLenient, nil
	default:
		return "", fmt.Errorf("unknown group policy %q", value)
	}
}

// GroupError describes a malformed child group of one filing.
type GroupError struct {
	FilingID     int64
	SoprFilingID string
	Group        string
	Element      string
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("filing %d (%s): unexpected <%s> inside <%s>", e.FilingID, e.SoprFilingID, e.Element, e.Group)
}

// Result holds the three record streams produced from one document.
type Result struct {
	Filings       []domain.Filing
	Lobbyists     []domain.Lobbyist
	Contributions []domain.Contribution
	// Warnings lists recoverable structural problems; they never drop a filing.
	Warnings []error
}

// Flattener walks the filing, registrant, lobbyist and contribution hierarchy.
type Flattener struct {
	policy GroupPolicy
}

// NewFlattener creates a flattener with the given malformed-group policy.
func NewFlattener(policy GroupPolicy) *Flattener {
	if policy == "" {
		policy = GroupLenient
	}
	return &Flattener{policy: policy}
}

// Flatten emits one Filing per filing element, in document order, drawing
// identifiers from counter. Every filing is emitted even when its group is
// malformed; under GroupStrict the first *GroupError is returned alongside the
// complete result so the caller can decide whether to keep it.
func (f *Flattener) Flatten(doc *document.Document, counter *Counter) (Result, error) {
	var (
		result   Result
		groupErr error
	)

	for _, node := range doc.Filings() {
		filing := buildFiling(doc.Name, node, counter.Next())
		result.Filings = append(result.Filings, filing)

		for _, lobbyistNode := range node.Descendants("lobbyist") {
			result.Lobbyists = append(result.Lobbyists, domain.Lobbyist{
				FilingID:       filing.FilingID,
				SourceDocument: doc.Name,
				SoprFilingID:   filing.SoprFilingID,
				LobbyistName:   Field(lobbyistNode, "lobbyistname"),
			})
		}

		contributions, problems := contributionNodes(node, filing)
		for _, contributionNode := range contributions {
			result.Contributions = append(result.Contributions, buildContribution(doc.Name, filing, contributionNode))
		}
		for _, problem := range problems {
			if f.policy == GroupStrict && groupErr == nil {
				groupErr = problem
			}
			result.Warnings = append(result.Warnings, problem)
		}
	}

	return result, groupErr
}

func buildFiling(source string, node *document.Node, id int64) domain.Filing {
	registrant := node.Child("registrant")
	return domain.Filing{
		FilingID:          id,
		SourceDocument:    source,
		SoprFilingID:      Field(node, "id"),
		Year:              Field(node, "year"),
		Received:          Field(node, "received"),
		Type:              Field(node, "type"),
		Period:            Field(node, "period"),
		RegistrantID:      Field(registrant, "registrantid"),
		RegistrantName:    Field(registrant, "registrantname"),
		RegistrantAddress: Field(registrant, "address"),
		RegistrantCountry: Field(registrant, "registrantcountry"),
	}
}

func buildContribution(source string, filing domain.Filing, node *document.Node) domain.Contribution {
	return domain.Contribution{
		FilingID:         filing.FilingID,
		SourceDocument:   source,
		SoprFilingID:     filing.SoprFilingID,
		Contributor:      Field(node, "contributor"),
		ContributionType: Field(node, "contributiontype"),
		Payee:            Field(node, "payee"),
		Honoree:          Field(node, "honoree"),
		Amount:           Field(node, "amount"),
		ContributionDate: Field(node, "contributiondate"),
	}
}

// contributionNodes separates an absent group (no nodes, no problems) from a
// malformed one (unexpected elements reported as problems).
func contributionNodes(filingNode *document.Node, filing domain.Filing) ([]*document.Node, []error) {
	group := filingNode.Child("contributions")
	if group == nil {
		return nil, nil
	}

	var (
		nodes    []*document.Node
		problems []error
	)
	for _, child := range group.Children {
		if child.Is("contribution") {
			nodes = append(nodes, child)
			continue
		}
		problems = append(problems, &GroupError{
			FilingID:     filing.FilingID,
			SoprFilingID: filing.SoprFilingID,
			Group:        group.Name,
			Element:      child.Name,
		})
	}
	return nodes, problems
}
