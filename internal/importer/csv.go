package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/attribution-cli/internal/model"
)

// Columns of the denormalized journey export. Each CSV row is one touchpoint
// with its journey fields repeated; rows sharing a journey_id are grouped
// back into one document.
const (
	colJourneyID       = "journey_id"
	colCustomerID      = "customer_id"
	colCustomerType    = "customer_type"
	colConverted       = "converted"
	colConversionValue = "conversion_value"
	colStartTimestamp  = "start_timestamp"
	colEndTimestamp    = "end_timestamp"
	colConfidenceScore = "confidence_score"
	colConfidenceLevel = "confidence_level"
	colTouchpointID    = "touchpoint_id"
	colChannel         = "channel"
	colTimestamp       = "timestamp"
	colCampaignID      = "campaign_id"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseJourneysCSV reads a denormalized journey export. Legacy exports are
// windows-1252 encoded; the reader sniffs the first block and transcodes when
// it is not valid UTF-8. Malformed rows are skipped and counted.
func ParseJourneysCSV(ctx context.Context, r io.Reader) ([]JourneyDocument, int, error) {
	decoded, err := decodeLegacyCharset(r)
	if err != nil {
		return nil, 0, err
	}

	reader := csv.NewReader(decoded)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "importer: read csv header")
	}
	colIdx := mapColumns(header)
	if _, ok := colIdx[colJourneyID]; !ok {
		return nil, 0, eris.Errorf("importer: csv header missing %q column", colJourneyID)
	}

	asm := newAssembler()
	skipped := 0
	for {
		if ctx.Err() != nil {
			return nil, skipped, eris.Wrap(ctx.Err(), "importer: csv read cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if !asm.addRow(record, colIdx) {
			skipped++
		}
	}

	return asm.documents(), skipped, nil
}

// decodeLegacyCharset sniffs up to 4KB of r. Valid UTF-8 passes through
// untouched; anything else is treated as windows-1252.
func decodeLegacyCharset(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 4096)
	prefix, err := br.Peek(4096)
	if err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "importer: sniff charset")
	}

	// Trim a possibly incomplete trailing rune before validating.
	for i := 0; i < utf8.UTFMax && len(prefix) > 0; i++ {
		if utf8.Valid(prefix) {
			return br, nil
		}
		prefix = prefix[:len(prefix)-1]
	}
	if utf8.Valid(prefix) {
		return br, nil
	}
	return charmap.Windows1252.NewDecoder().Reader(br), nil
}

// assembler groups denormalized rows into journey documents, preserving
// first-seen journey order.
type assembler struct {
	order []string
	byID  map[string]*JourneyDocument
}

func newAssembler() *assembler {
	return &assembler{byID: make(map[string]*JourneyDocument)}
}

func (a *assembler) addRow(record []string, colIdx map[string]int) bool {
	journeyID := getCol(record, colIdx, colJourneyID)
	channel := getCol(record, colIdx, colChannel)
	if journeyID == "" || channel == "" {
		return false
	}

	ts, ok := parseTimestamp(getCol(record, colIdx, colTimestamp))
	if !ok {
		return false
	}

	doc, seen := a.byID[journeyID]
	if !seen {
		start, startOK := parseTimestamp(getCol(record, colIdx, colStartTimestamp))
		end, endOK := parseTimestamp(getCol(record, colIdx, colEndTimestamp))
		if !startOK || !endOK {
			return false
		}
		doc = &JourneyDocument{
			CustomerJourney: model.CustomerJourney{
				ID:              journeyID,
				CustomerID:      getCol(record, colIdx, colCustomerID),
				CustomerType:    model.CustomerType(getCol(record, colIdx, colCustomerType)),
				Converted:       parseBoolOr(getCol(record, colIdx, colConverted), false),
				ConversionValue: parseFloatOr(getCol(record, colIdx, colConversionValue), 0),
				StartDate:       start,
				EndDate:         end,
				ConfidenceScore: parseFloatOr(getCol(record, colIdx, colConfidenceScore), 0),
				ConfidenceLevel: model.ConfidenceLevel(strings.ToLower(getCol(record, colIdx, colConfidenceLevel))),
			},
		}
		a.byID[journeyID] = doc
		a.order = append(a.order, journeyID)
	}

	doc.Touchpoints = append(doc.Touchpoints, model.Touchpoint{
		ID:         getCol(record, colIdx, colTouchpointID),
		JourneyID:  journeyID,
		Channel:    channel,
		Timestamp:  ts,
		CampaignID: getCol(record, colIdx, colCampaignID),
	})
	return true
}

func (a *assembler) documents() []JourneyDocument {
	docs := make([]JourneyDocument, 0, len(a.order))
	for _, id := range a.order {
		doc := a.byID[id]
		doc.TotalTouchpoints = len(doc.Touchpoints)
		docs = append(docs, *doc)
	}
	return docs
}

func mapColumns(header []string) map[string]int {
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return colIdx
}

func getCol(record []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseFloatOr(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBoolOr(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return def
	}
	return b
}
