package report

// XML STRUCTURE:
//
//   <reconciliation id="..." month="2024-03" status="saved" updated="...">
//     <summary>
//       <totalTransactions>4</totalTransactions>
//       ...
//     </summary>
//     <statements>
//       <statement name="march.csv" format="csv" size="2048"/>
//     </statements>
//     <transaction n="1" id="T1" type="debit" state="matched">
//       <date>2024-03-05</date>
//       <amount>100.00</amount>
//       <description>ACME rent</description>
//       <invoice uuid="...">
//         <issuer>ACME</issuer>
//         <total>100.00</total>
//       </invoice>
//     </transaction>
//     <transaction n="2" id="T2" type="debit" state="pending">
//       ...
//     </transaction>
//   </reconciliation>

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

const dateLayout = "2006-01-02"

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	XMLVersion string
	Encoding   string

	// RootAttributes are additional attributes for the root element, written
	// in key order.
	// Example: {"xmlns": "urn:example:reconciliation"}
	RootAttributes map[string]string
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		XMLVersion:            "1.0",
		Encoding:              "UTF-8",
		RootAttributes:        make(map[string]string),
	}
}

// =============================================================================
// XML GENERATION FUNCTIONS
// =============================================================================

// GenerateXML renders the session as an XML reconciliation report.
// Invoices add issuer and total details to matched transactions; pass the
// month's invoices, or nil for uuids only.
func GenerateXML(session types.Session, invoices []types.Invoice) ([]byte, error) {
	return GenerateXMLWithOptions(session, invoices, DefaultGenerateOptions())
}

// GenerateXMLWithOptions renders the report with custom options.
func GenerateXMLWithOptions(session types.Session, invoices []types.Invoice, options GenerateOptions) ([]byte, error) {
	if session.ID == "" {
		return nil, fmt.Errorf("session has no id")
	}

	var buffer bytes.Buffer
	if options.IncludeXMLDeclaration {
		fmt.Fprintf(&buffer, "<?xml version=\"%s\" encoding=\"%s\"?>\n", options.XMLVersion, options.Encoding)
	}

	root := buildDocument(session, Lines(session, invoices), options)
	if err := writeElement(&buffer, root, options.Indent, 0); err != nil {
		return nil, fmt.Errorf("failed to write XML: %w", err)
	}
	return buffer.Bytes(), nil
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

// XMLElement is a generic XML element. An element carries either a text
// value or children.
type XMLElement struct {
	Name       string
	Attributes []xml.Attr
	Value      string
	Children   []XMLElement
}

func buildDocument(session types.Session, lines []Line, options GenerateOptions) XMLElement {
	root := XMLElement{Name: "reconciliation"}
	root.Attributes = append(root.Attributes,
		attr("id", session.ID),
		attr("month", session.Data.ReconciliationMonth.String()),
		attr("status", string(session.Status)),
		attr("updated", session.UpdatedAt.UTC().Format(time.RFC3339)),
	)

	keys := make([]string, 0, len(options.RootAttributes))
	for key := range options.RootAttributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		root.Attributes = append(root.Attributes, attr(key, options.RootAttributes[key]))
	}

	s := session.Summary
	root.Children = append(root.Children, XMLElement{
		Name: "summary",
		Children: []XMLElement{
			simple("totalTransactions", strconv.Itoa(s.TotalTransactions)),
			simple("debitTransactions", strconv.Itoa(s.TotalDebitTransactions)),
			simple("reconciled", strconv.Itoa(s.ReconciledCount)),
			simple("unreconciled", strconv.Itoa(s.UnreconciledCount)),
			simple("progress", strconv.FormatFloat(s.ProgressPercentage, 'f', 2, 64)),
			simple("reconciledAmount", s.ReconciledAmount.StringFixed(2)),
		},
	})

	if len(session.Data.BankStatements) > 0 {
		statements := XMLElement{Name: "statements"}
		for _, f := range session.Data.BankStatements {
			statements.Children = append(statements.Children, XMLElement{
				Name: "statement",
				Attributes: []xml.Attr{
					attr("name", f.Name),
					attr("format", f.Format),
					attr("size", strconv.FormatInt(f.Size, 10)),
				},
			})
		}
		root.Children = append(root.Children, statements)
	}

	for _, line := range lines {
		root.Children = append(root.Children, buildTransactionElement(line))
	}
	return root
}

// buildTransactionElement constructs one transaction element.
func buildTransactionElement(line Line) XMLElement {
	tx := line.Transaction
	element := XMLElement{
		Name: "transaction",
		Attributes: []xml.Attr{
			attr("n", strconv.Itoa(line.Index)),
			attr("id", tx.ID),
			attr("type", string(tx.Type)),
			attr("state", line.State),
		},
		Children: []XMLElement{
			simple("date", tx.Date.Format(dateLayout)),
			simple("amount", tx.Amount.StringFixed(2)),
		},
	}
	if tx.Description != "" {
		element.Children = append(element.Children, simple("description", tx.Description))
	}

	if line.State == StateMatched {
		invoice := XMLElement{Name: "invoice", Attributes: []xml.Attr{attr("uuid", line.InvoiceUUID)}}
		if inv := line.Invoice; inv != nil {
			invoice.Children = []XMLElement{
				simple("issuer", inv.IssuerName),
				simple("date", inv.Date.Format(dateLayout)),
				simple("total", inv.Total.StringFixed(2)),
				simple("currency", inv.Currency),
			}
		}
		element.Children = append(element.Children, invoice)
	}
	return element
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func simple(name, value string) XMLElement {
	return XMLElement{Name: name, Value: value}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// writeElement writes an element and its children with indentation.
func writeElement(buffer *bytes.Buffer, element XMLElement, indent string, level int) error {
	pad := strings.Repeat(indent, level)

	buffer.WriteString(pad)
	buffer.WriteString("<")
	buffer.WriteString(element.Name)
	for _, a := range element.Attributes {
		buffer.WriteString(" ")
		buffer.WriteString(a.Name.Local)
		buffer.WriteString(`="`)
		if err := xml.EscapeText(buffer, []byte(a.Value)); err != nil {
			return err
		}
		buffer.WriteString(`"`)
	}

	if len(element.Children) == 0 && element.Value == "" {
		buffer.WriteString("/>\n")
		return nil
	}
	buffer.WriteString(">")

	if len(element.Children) == 0 {
		if err := xml.EscapeText(buffer, []byte(element.Value)); err != nil {
			return err
		}
	} else {
		buffer.WriteString("\n")
		for _, child := range element.Children {
			if err := writeElement(buffer, child, indent, level+1); err != nil {
				return err
			}
		}
		buffer.WriteString(pad)
	}

	buffer.WriteString("</")
	buffer.WriteString(element.Name)
	buffer.WriteString(">\n")
	return nil
}

// =============================================================================
// XSD GENERATION
// =============================================================================

type xsdField struct {
	name      string
	xsdType   string
	minOccurs int
}

var (
	summaryFields = []xsdField{
		{"totalTransactions", "xs:nonNegativeInteger", 1},
		{"debitTransactions", "xs:nonNegativeInteger", 1},
		{"reconciled", "xs:nonNegativeInteger", 1},
		{"unreconciled", "xs:nonNegativeInteger", 1},
		{"progress", "xs:decimal", 1},
		{"reconciledAmount", "xs:decimal", 1},
	}
	transactionFields = []xsdField{
		{"date", "xs:date", 1},
		{"amount", "xs:decimal", 1},
		{"description", "xs:string", 0},
	}
	invoiceFields = []xsdField{
		{"issuer", "xs:string", 0},
		{"date", "xs:date", 0},
		{"total", "xs:decimal", 0},
		{"currency", "xs:string", 0},
	}
)

// GenerateXSD returns the XML schema of the reconciliation report.
func GenerateXSD() []byte {
	var buffer bytes.Buffer

	buffer.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="reconciliation">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="summary">
          <xs:complexType>
            <xs:sequence>
`)
	for _, f := range summaryFields {
		writeXSDElement(&buffer, f, 7)
	}
	buffer.WriteString(`            </xs:sequence>
          </xs:complexType>
        </xs:element>
        <xs:element name="statements" minOccurs="0">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="statement" maxOccurs="unbounded">
                <xs:complexType>
                  <xs:attribute name="name" type="xs:string" use="required"/>
                  <xs:attribute name="format" type="xs:string"/>
                  <xs:attribute name="size" type="xs:nonNegativeInteger"/>
                </xs:complexType>
              </xs:element>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
        <xs:element name="transaction" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:sequence>
`)
	for _, f := range transactionFields {
		writeXSDElement(&buffer, f, 7)
	}
	buffer.WriteString(`              <xs:element name="invoice" minOccurs="0">
                <xs:complexType>
                  <xs:sequence>
`)
	for _, f := range invoiceFields {
		writeXSDElement(&buffer, f, 10)
	}
	buffer.WriteString(`                  </xs:sequence>
                  <xs:attribute name="uuid" type="xs:string" use="required"/>
                </xs:complexType>
              </xs:element>
            </xs:sequence>
            <xs:attribute name="n" type="xs:positiveInteger" use="required"/>
            <xs:attribute name="id" type="xs:string" use="required"/>
            <xs:attribute name="type" type="xs:string" use="required"/>
            <xs:attribute name="state" type="xs:string" use="required"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
      <xs:attribute name="id" type="xs:string" use="required"/>
      <xs:attribute name="month" type="xs:gYearMonth" use="required"/>
      <xs:attribute name="status" type="xs:string" use="required"/>
      <xs:attribute name="updated" type="xs:dateTime"/>
    </xs:complexType>
  </xs:element>
</xs:schema>
`)
	return buffer.Bytes()
}

func writeXSDElement(buffer *bytes.Buffer, f xsdField, indentLevel int) {
	fmt.Fprintf(buffer, "%s<xs:element name=\"%s\" type=\"%s\" minOccurs=\"%d\"/>\n",
		strings.Repeat("  ", indentLevel), f.name, f.xsdType, f.minOccurs)
}
