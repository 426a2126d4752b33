package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PayloadFormat is the encoding a subscription channel asks for.
type PayloadFormat uint8

const (
	// PayloadNone means the channel only wants a liveness ping.
	PayloadNone PayloadFormat = iota
	PayloadJSON
	PayloadXML
)

// String returns the format name.
func (f PayloadFormat) String() string {
	switch f {
	case PayloadJSON:
		return "json"
	case PayloadXML:
		return "xml"
	default:
		return "none"
	}
}

// ParsePayloadFormat maps a channel payload MIME type to a format. Any
// parameters after ';' are ignored. Unrecognized types map to PayloadNone.
func ParsePayloadFormat(mime string) PayloadFormat {
	base, _, _ := strings.Cut(mime, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case "application/fhir+json", "application/json+fhir", "application/json", "json":
		return PayloadJSON
	case "application/fhir+xml", "application/xml+fhir", "application/xml", "text/xml", "xml":
		return PayloadXML
	default:
		return PayloadNone
	}
}

// MIME returns the canonical MIME type of the format, or "" for PayloadNone.
func (f PayloadFormat) MIME() string {
	switch f {
	case PayloadJSON:
		return "application/fhir+json"
	case PayloadXML:
		return "application/fhir+xml"
	default:
		return ""
	}
}

// EncodeJSON renders the resource as FHIR JSON text.
func EncodeJSON(r *Resource) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s as json: %w", r.Kind, r.ID, err)
	}
	return string(data), nil
}

// Encode renders the resource in the given payload format.
func Encode(r *Resource, format PayloadFormat) (string, error) {
	switch format {
	case PayloadJSON:
		return EncodeJSON(r)
	case PayloadXML:
		return EncodeXML(r)
	default:
		return "", fmt.Errorf("encode %s/%s: no payload format", r.Kind, r.ID)
	}
}

// PrimitiveString formats a JSON primitive the way FHIR writes it.
func PrimitiveString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
