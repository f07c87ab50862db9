package importer

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// ParseJourneysJSON decodes an assembler export. The canonical shape is a
// top-level array of journey documents; exports wrapped in a
// {"journeys": [...]} envelope are accepted too.
func ParseJourneysJSON(ctx context.Context, r io.Reader) ([]JourneyDocument, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "importer: read opening json token")
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, eris.Errorf("importer: expected '[' or '{', got %v", tok)
	}

	switch delim {
	case '[':
		return decodeDocuments(ctx, decoder)
	case '{':
		for decoder.More() {
			keyTok, err := decoder.Token()
			if err != nil {
				return nil, eris.Wrap(err, "importer: read envelope key")
			}
			key, _ := keyTok.(string)
			if key != "journeys" {
				var skip json.RawMessage
				if err := decoder.Decode(&skip); err != nil {
					return nil, eris.Wrapf(err, "importer: skip envelope field %q", key)
				}
				continue
			}

			tok, err := decoder.Token()
			if err != nil {
				return nil, eris.Wrap(err, "importer: read journeys token")
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return nil, eris.Errorf("importer: journeys field is not an array")
			}
			return decodeDocuments(ctx, decoder)
		}
		return nil, eris.New("importer: envelope has no journeys field")
	default:
		return nil, eris.Errorf("importer: expected '[' or '{', got %v", delim)
	}
}

func decodeDocuments(ctx context.Context, decoder *json.Decoder) ([]JourneyDocument, error) {
	var docs []JourneyDocument
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "importer: json decode cancelled")
		}
		var doc JourneyDocument
		if err := decoder.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "importer: decode journey document")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
