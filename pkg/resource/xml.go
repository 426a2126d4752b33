package resource

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	// FHIRNamespace is the XML namespace of FHIR resources.
	FHIRNamespace = "http://hl7.org/fhir"

	// XHTMLNamespace is the namespace of narrative divs.
	XHTMLNamespace = "http://www.w3.org/1999/xhtml"
)

var errInvalidNarrative = errors.New("narrative div is not well-formed xhtml")

// EncodeXML renders the resource as FHIR XML text.
//
// Top-level elements follow Kind.ElementOrder, with unknown elements after
// them in key order. The data type of a nested object is not known, so its
// extensions come first and its other elements follow in key order; element
// ids and extension urls are attributes. Primitive extensions ("_birthDate")
// are folded into their element. Narrative divs are written as XHTML.
func EncodeXML(r *Resource) (string, error) {
	var sb strings.Builder
	x := &xmlWriter{w: &sb, enc: xml.NewEncoder(&sb)}
	if err := x.resource(r.Kind, r.ID, r.Fields); err != nil {
		return "", fmt.Errorf("encode %s/%s as xml: %w", r.Kind, r.ID, err)
	}
	if err := x.enc.Flush(); err != nil {
		return "", fmt.Errorf("encode %s/%s as xml: %w", r.Kind, r.ID, err)
	}
	return sb.String(), nil
}

type xmlWriter struct {
	w   io.Writer
	enc *xml.Encoder
}

// datatypeLead are written first inside any data type. Element ids and
// extension urls are attributes and never reach the element list.
var datatypeLead = []string{"extension", "modifierExtension"}

func (x *xmlWriter) resource(kind Kind, id string, fields map[string]any) error {
	root := xml.StartElement{
		Name: xml.Name{Local: kind.String()},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: FHIRNamespace}},
	}
	if err := x.enc.EncodeToken(root); err != nil {
		return err
	}
	obj := fields
	if id != "" {
		obj = make(map[string]any, len(fields)+1)
		for k, v := range fields {
			obj[k] = v
		}
		obj["id"] = id
	}
	if err := x.object(obj, kind.ElementOrder()); err != nil {
		return err
	}
	return x.enc.EncodeToken(root.End())
}

// object writes the elements of obj, first those named in order, then the
// rest sorted by key.
func (x *xmlWriter) object(obj map[string]any, order []string) error {
	for _, k := range orderedKeys(obj, order) {
		if err := x.element(k, obj[k], obj["_"+k]); err != nil {
			return err
		}
	}
	return nil
}

func orderedKeys(obj map[string]any, order []string) []string {
	keys := make([]string, 0, len(obj))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
		if _, ok := obj[k]; ok {
			keys = append(keys, k)
		} else if _, ok := obj["_"+k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range obj {
		if k == "resourceType" || seen[k] {
			continue
		}
		if base, ok := strings.CutPrefix(k, "_"); ok {
			// Folded into base, or written alone when base is absent.
			if _, has := obj[base]; has || seen[base] {
				continue
			}
			k = base
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(keys, compactSorted(rest)...)
}

func compactSorted(keys []string) []string {
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}

// element writes name for value v with the primitive extension ext
// (the "_name" sibling in JSON). Arrays pair values and extensions by index.
func (x *xmlWriter) element(name string, v, ext any) error {
	values, isList := v.([]any)
	exts, extList := ext.([]any)
	if isList || extList {
		n := max(len(values), len(exts))
		for i := range n {
			var vi, ei any
			if i < len(values) {
				vi = values[i]
			}
			if i < len(exts) {
				ei = exts[i]
			}
			if err := x.single(name, vi, ei); err != nil {
				return err
			}
		}
		return nil
	}
	return x.single(name, v, ext)
}

func (x *xmlWriter) single(name string, v, ext any) error {
	extObj, _ := ext.(map[string]any)
	switch t := v.(type) {
	case nil:
		if extObj == nil {
			return nil
		}
		return x.primitive(name, nil, extObj)
	case map[string]any:
		if name == "contained" {
			return x.contained(t)
		}
		start := xml.StartElement{Name: xml.Name{Local: name}}
		rest := t
		attrs := []string{"id"}
		if name == "extension" || name == "modifierExtension" {
			attrs = append(attrs, "url")
		}
		for _, a := range attrs {
			if s, ok := t[a].(string); ok {
				start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a}, Value: s})
				rest = without(rest, a)
			}
		}
		if err := x.enc.EncodeToken(start); err != nil {
			return err
		}
		if err := x.datatype(rest); err != nil {
			return err
		}
		return x.enc.EncodeToken(start.End())
	default:
		return x.primitive(name, t, extObj)
	}
}

func (x *xmlWriter) datatype(obj map[string]any) error {
	if div, ok := obj["div"].(string); ok {
		if err := x.object(without(obj, "div"), datatypeLead); err != nil {
			return err
		}
		return x.narrative(div)
	}
	return x.object(obj, datatypeLead)
}

func without(obj map[string]any, key string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func (x *xmlWriter) primitive(name string, v any, ext map[string]any) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if ext != nil {
		if id, ok := ext["id"].(string); ok {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: id})
		}
	}
	if v != nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "value"}, Value: PrimitiveString(v)})
	}
	if err := x.enc.EncodeToken(start); err != nil {
		return err
	}
	if ext != nil {
		if err := x.element("extension", ext["extension"], nil); err != nil {
			return err
		}
	}
	return x.enc.EncodeToken(start.End())
}

func (x *xmlWriter) contained(obj map[string]any) error {
	typeName, _ := obj["resourceType"].(string)
	kind, ok := ParseKind(typeName)
	if !ok {
		return fmt.Errorf("contained resource type %q", typeName)
	}
	start := xml.StartElement{Name: xml.Name{Local: "contained"}}
	if err := x.enc.EncodeToken(start); err != nil {
		return err
	}
	id, _ := obj["id"].(string)
	if err := x.resource(kind, id, without(obj, "id")); err != nil {
		return err
	}
	return x.enc.EncodeToken(start.End())
}

// narrative writes div verbatim after checking it is a single well-formed
// div element. A div without a namespace gets the XHTML one.
func (x *xmlWriter) narrative(div string) error {
	div = strings.TrimSpace(div)
	if !strings.HasPrefix(div, "<div") {
		return errInvalidNarrative
	}
	dec := xml.NewDecoder(strings.NewReader(div))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errInvalidNarrative, err)
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots != 1 || depth != 0 {
		return errInvalidNarrative
	}

	head, _, _ := strings.Cut(div, ">")
	if !strings.Contains(head, "xmlns=") {
		div = `<div xmlns="` + XHTMLNamespace + `"` + div[len("<div"):]
	}
	if err := x.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(x.w, div)
	return err
}
