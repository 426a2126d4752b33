package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePatient() *Resource {
	return New(KindPatient, "123", map[string]any{
		"active": true,
		"name": []any{
			map[string]any{"family": "Smith", "given": []any{"Anna", "Maria"}},
			map[string]any{"family": "Jones", "given": []any{"Ann"}},
		},
		"generalPractitioner": []any{
			map[string]any{"reference": "Practitioner/7"},
			map[string]any{"reference": "not a reference"},
		},
		"managingOrganization": map[string]any{"reference": "https://example.org/fhir/Organization/9/_history/2"},
	})
}

func TestKindLookup(t *testing.T) {
	for _, k := range Kinds() {
		parsed, ok := ParseKind(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, parsed)
		assert.True(t, k.Valid())
	}

	_, ok := ParseKind("Medication")
	assert.False(t, ok)
	assert.False(t, KindUnknown.Valid())
	assert.Equal(t, "Unknown", KindUnknown.String())

	assert.Equal(t, []Kind{KindPatient}, KindObservation.ReferenceTargets("subject"))
	assert.Nil(t, KindObservation.ReferenceTargets("code"))
	assert.Empty(t, KindSubscription.ReferencePaths())
}

func TestValues(t *testing.T) {
	p := samplePatient()

	assert.Equal(t, []any{true}, p.Values("active"))
	assert.Equal(t, []any{"Smith", "Jones"}, p.Values("name.family"))
	assert.Equal(t, []any{"Anna", "Maria", "Ann"}, p.Values("name.given"))
	assert.Equal(t, []any{"123"}, p.Values("id"))
	assert.Nil(t, p.Values("birthDate"))
	assert.Nil(t, p.Values("active.value"))
}

func TestReferences(t *testing.T) {
	p := samplePatient()

	assert.Equal(t, []Reference{{Kind: KindPractitioner, ID: "7"}}, p.References("generalPractitioner"))
	assert.Equal(t, []Reference{{Kind: KindOrganization, ID: "9"}}, p.References("managingOrganization"))
	assert.Nil(t, p.References("link.other"))
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in      string
		want    Reference
		wantErr bool
	}{
		{in: "Patient/1", want: Reference{Kind: KindPatient, ID: "1"}},
		{in: "/Task/7/", want: Reference{Kind: KindTask, ID: "7"}},
		{in: "http://h/fhir/Observation/o-1/_history/3", want: Reference{Kind: KindObservation, ID: "o-1"}},
		{in: "Patient", wantErr: true},
		{in: "Medication/1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseReference(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidReference, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "Patient/1", Reference{Kind: KindPatient, ID: "1"}.String())
}

func TestIDPart(t *testing.T) {
	assert.Equal(t, "abc", IDPart("abc"))
	assert.Equal(t, "abc", IDPart("Subscription/abc"))
	assert.Equal(t, "abc", IDPart("Subscription/abc/_history/2"))
	assert.Equal(t, "abc", IDPart("https://h/fhir/Subscription/abc/_history/2"))
	assert.Equal(t, "", IDPart(""))
}

func TestJSONRoundTrip(t *testing.T) {
	p := samplePatient()

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Patient", raw["resourceType"])
	assert.Equal(t, "123", raw["id"])

	var back Resource
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, KindPatient, back.Kind)
	assert.Equal(t, "123", back.ID)
	assert.Equal(t, []any{"Smith", "Jones"}, back.Values("name.family"))
	assert.NotContains(t, back.Fields, "resourceType")
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	var r Resource
	err := json.Unmarshal([]byte(`{"resourceType":"Medication","id":"1"}`), &r)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"1"}`), &r)
	assert.Error(t, err)
}

func TestFromMapNormalizesYAMLShapes(t *testing.T) {
	r, err := FromMap(map[string]any{
		"resourceType": "Observation",
		"id":           "o1",
		"valueInteger": 5,
		"subject":      map[any]any{"reference": "Patient/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(5)}, r.Values("valueInteger"))
	assert.Equal(t, []Reference{{Kind: KindPatient, ID: "1"}}, r.References("subject"))
}

func TestEncodeXML(t *testing.T) {
	r := New(KindPatient, "123", map[string]any{
		"active": true,
		"name":   []any{map[string]any{"family": "Smith"}},
	})

	got, err := EncodeXML(r)
	require.NoError(t, err)
	want := `<Patient xmlns="http://hl7.org/fhir">` +
		`<id value="123"></id>` +
		`<active value="true"></active>` +
		`<name><family value="Smith"></family></name>` +
		`</Patient>`
	assert.Equal(t, want, got)
}

func TestEncodeXMLSchemaOrder(t *testing.T) {
	r := New(KindPatient, "123", map[string]any{
		"gender":    "female",
		"birthDate": "1970-01-01",
		"_birthDate": map[string]any{
			"extension": []any{map[string]any{"url": "http://example.org/approx", "valueBoolean": true}},
		},
		"name": []any{map[string]any{
			"family": "García",
			"given":  []any{"José"},
			"_given": []any{map[string]any{"id": "g1"}},
		}},
		"identifier": []any{map[string]any{"system": "urn:mrn", "value": "42"}},
		"text":       map[string]any{"status": "generated", "div": "<div><p>José García</p></div>"},
		"active":     true,
		"zNote":      "kept",
	})

	got, err := EncodeXML(r)
	require.NoError(t, err)
	want := `<Patient xmlns="http://hl7.org/fhir">` +
		`<id value="123"></id>` +
		`<text><status value="generated"></status>` +
		`<div xmlns="http://www.w3.org/1999/xhtml"><p>José García</p></div></text>` +
		`<identifier><system value="urn:mrn"></system><value value="42"></value></identifier>` +
		`<active value="true"></active>` +
		`<name><family value="García"></family><given id="g1" value="José"></given></name>` +
		`<gender value="female"></gender>` +
		`<birthDate value="1970-01-01">` +
		`<extension url="http://example.org/approx"><valueBoolean value="true"></valueBoolean></extension>` +
		`</birthDate>` +
		`<zNote value="kept"></zNote>` +
		`</Patient>`
	assert.Equal(t, want, got)
}

func TestEncodeXMLContained(t *testing.T) {
	r := New(KindObservation, "o1", map[string]any{
		"subject": map[string]any{"reference": "#p"},
		"status":  "final",
		"contained": []any{map[string]any{
			"resourceType": "Patient",
			"id":           "p",
			"active":       true,
		}},
	})

	got, err := EncodeXML(r)
	require.NoError(t, err)
	want := `<Observation xmlns="http://hl7.org/fhir">` +
		`<id value="o1"></id>` +
		`<contained><Patient xmlns="http://hl7.org/fhir"><id value="p"></id><active value="true"></active></Patient></contained>` +
		`<status value="final"></status>` +
		`<subject><reference value="#p"></reference></subject>` +
		`</Observation>`
	assert.Equal(t, want, got)
}

func TestEncodeXMLRejectsBadNarrative(t *testing.T) {
	for _, div := range []string{"plain text", "<div><p>open</div>", "<div></div><div></div>"} {
		r := New(KindPatient, "1", map[string]any{
			"text": map[string]any{"status": "generated", "div": div},
		})
		_, err := EncodeXML(r)
		assert.Error(t, err, div)
	}
}

func TestElementOrder(t *testing.T) {
	order := KindTask.ElementOrder()
	require.NotEmpty(t, order)
	assert.Equal(t, "id", order[0])
	assert.Equal(t, "output", order[len(order)-1])
	assert.Contains(t, KindPatient.ElementOrder(), "birthDate")
	assert.Nil(t, KindUnknown.ElementOrder())
}

func TestEncodeDispatch(t *testing.T) {
	r := New(KindTask, "7", map[string]any{"status": "ready"})

	j, err := Encode(r, PayloadJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resourceType":"Task","id":"7","status":"ready"}`, j)

	x, err := Encode(r, PayloadXML)
	require.NoError(t, err)
	assert.Contains(t, x, `<status value="ready"></status>`)

	_, err = Encode(r, PayloadNone)
	assert.Error(t, err)
}

func TestParsePayloadFormat(t *testing.T) {
	assert.Equal(t, PayloadJSON, ParsePayloadFormat("application/fhir+json"))
	assert.Equal(t, PayloadJSON, ParsePayloadFormat("application/json; charset=utf-8"))
	assert.Equal(t, PayloadXML, ParsePayloadFormat("application/fhir+xml"))
	assert.Equal(t, PayloadXML, ParsePayloadFormat("XML"))
	assert.Equal(t, PayloadNone, ParsePayloadFormat(""))
	assert.Equal(t, PayloadNone, ParsePayloadFormat("text/plain"))
}

func TestSubscriptionFromResource(t *testing.T) {
	r := New(KindSubscription, "sub-1", map[string]any{
		"criteria": "Patient?active=true",
		"status":   "active",
		"channel": map[string]any{
			"type":     "websocket",
			"payload":  "application/fhir+json",
			"endpoint": "wss://example.org/websocket",
			"header":   []any{"Authorization: Bearer x"},
		},
	})

	sub, err := SubscriptionFromResource(r)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.IDPart())
	assert.Equal(t, "Patient?active=true", sub.Criteria)
	assert.True(t, sub.Active())
	assert.Equal(t, PayloadJSON, sub.Channel.Payload)
	assert.Equal(t, "websocket", sub.Channel.Type)
	assert.Equal(t, []string{"Authorization: Bearer x"}, sub.Channel.Headers)

	back, err := SubscriptionFromResource(sub.Resource())
	require.NoError(t, err)
	assert.Equal(t, sub, back)

	_, err = SubscriptionFromResource(samplePatient())
	assert.ErrorIs(t, err, ErrNotSubscription)
}

func TestSubscriptionWithoutPayload(t *testing.T) {
	sub, err := SubscriptionFromResource(New(KindSubscription, "y", map[string]any{
		"criteria": "Task?status=ready",
		"status":   "off",
		"channel":  map[string]any{"type": "websocket"},
	}))
	require.NoError(t, err)
	assert.Equal(t, PayloadNone, sub.Channel.Payload)
	assert.False(t, sub.Active())
}

func TestNewEvent(t *testing.T) {
	p := samplePatient()
	ev := NewEvent(OpUpdate, p)
	assert.Equal(t, KindPatient, ev.Kind)
	assert.Equal(t, "123", ev.ResourceID)
	assert.Equal(t, "update", ev.Operation.String())
	assert.Equal(t, Reference{Kind: KindPatient, ID: "123"}, ev.Reference())
}
