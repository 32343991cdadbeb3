package flatten

import (
	"strings"
	"unicode/utf8"

	"github.com/rpattn/lobbyxml/internal/document"
	"github.com/rpattn/lobbyxml/internal/domain"
)

// encodedCRLF is the line-break sequence the dumps embed inside free-text attributes.
// Depending on how the export escaped it, it reaches us either still encoded or
// already decoded by the XML parser. Any other entity text left after XML
// decoding is literal data and is kept as is.
const encodedCRLF = "&#x0D;&#x0A;"

var lineBreaks = strings.NewReplacer(
	encodedCRLF, " ",
	"&#x0d;&#x0a;", " ",
	"&#x0D;", " ",
	"&#x0A;", " ",
	"&#x0d;", " ",
	"&#x0a;", " ",
	"\r\n", " ",
	"\r", " ",
	"\n", " ",
)

// Field returns the cleaned value of attribute name on node, or domain.Placeholder
// when the node or attribute is absent or the value is not valid text. It never fails.
func Field(node *document.Node, name string) string {
	raw, ok := node.Attr(name)
	if !ok {
		return domain.Placeholder
	}
	if !utf8.ValidString(raw) {
		return domain.Placeholder
	}
	return lineBreaks.Replace(raw)
}
