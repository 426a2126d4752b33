package criteria

import (
	"fmt"
	"strings"
	"time"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// predicate decides one clause of a query for a resource. inc holds the
// referenced resources resolved before evaluation.
type predicate func(r *resource.Resource, inc Includes) bool

func anyOf(alts []predicate) predicate {
	if len(alts) == 1 {
		return alts[0]
	}
	return func(r *resource.Resource, inc Includes) bool {
		for _, p := range alts {
			if p(r, inc) {
				return true
			}
		}
		return false
	}
}

func not(p predicate) predicate {
	return func(r *resource.Resource, inc Includes) bool {
		return !p(r, inc)
	}
}

func valuesAt(r *resource.Resource, paths []string) []any {
	if len(paths) == 1 {
		return r.Values(paths[0])
	}
	var out []any
	for _, p := range paths {
		out = append(out, r.Values(p)...)
	}
	return out
}

func missingPredicate(paths []string, missing bool) predicate {
	return func(r *resource.Resource, _ Includes) bool {
		return (len(valuesAt(r, paths)) == 0) == missing
	}
}

// token is one coded value: a Coding, an Identifier, or a primitive.
type token struct {
	system string
	code   string
}

func tokensOf(v any) []token {
	switch t := v.(type) {
	case map[string]any:
		if codings, ok := t["coding"].([]any); ok {
			var out []token
			for _, c := range codings {
				out = append(out, tokensOf(c)...)
			}
			return out
		}
		system, _ := t["system"].(string)
		if code, ok := t["code"].(string); ok {
			return []token{{system: system, code: code}}
		}
		if value, ok := t["value"].(string); ok {
			return []token{{system: system, code: value}}
		}
		return nil
	case nil:
		return nil
	default:
		return []token{{code: resource.PrimitiveString(t)}}
	}
}

func tokenPredicate(paths []string, value string) predicate {
	system, code, hasSystem := strings.Cut(value, "|")
	if !hasSystem {
		code, system = value, ""
	}
	return func(r *resource.Resource, _ Includes) bool {
		for _, v := range valuesAt(r, paths) {
			for _, tok := range tokensOf(v) {
				if hasSystem && tok.system != system {
					continue
				}
				if code != "" && tok.code != code {
					continue
				}
				return true
			}
		}
		return false
	}
}

// stringsOf collects the string leaves of an element, so a HumanName or
// Address can be searched as a whole.
func stringsOf(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		return append(out, t)
	case []any:
		for _, e := range t {
			out = stringsOf(e, out)
		}
	case map[string]any:
		for _, e := range t {
			out = stringsOf(e, out)
		}
	}
	return out
}

type stringMode uint8

const (
	stringPrefix stringMode = iota
	stringExact
	stringContains
)

func stringPredicate(paths []string, value string, mode stringMode) predicate {
	want := value
	if mode != stringExact {
		want = strings.ToLower(value)
	}
	return func(r *resource.Resource, _ Includes) bool {
		var candidates []string
		for _, v := range valuesAt(r, paths) {
			candidates = stringsOf(v, candidates)
		}
		for _, s := range candidates {
			switch mode {
			case stringExact:
				if s == want {
					return true
				}
			case stringContains:
				if strings.Contains(strings.ToLower(s), want) {
					return true
				}
			default:
				if strings.HasPrefix(strings.ToLower(s), want) {
					return true
				}
			}
		}
		return false
	}
}

// referencePredicate matches "Type/id", an absolute reference, or a bare id.
// allowed restricts the referenced kinds; it is never empty.
func referencePredicate(paths []string, value string, allowed []resource.Kind) (predicate, error) {
	var want resource.Reference
	if strings.Contains(value, "/") {
		ref, err := resource.ParseReference(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
		}
		if !containsKind(allowed, ref.Kind) {
			return nil, fmt.Errorf("%w: reference %s not allowed here", ErrInvalidCriteria, value)
		}
		want = ref
	} else {
		want.ID = value
	}
	return func(r *resource.Resource, _ Includes) bool {
		for _, p := range paths {
			for _, ref := range r.References(p) {
				if !containsKind(allowed, ref.Kind) {
					continue
				}
				if want.Kind != resource.KindUnknown && ref.Kind != want.Kind {
					continue
				}
				if ref.ID == want.ID {
					return true
				}
			}
		}
		return false
	}, nil
}

// chainPredicate follows references at paths and applies the target kind's
// predicate to the resolved resource.
func chainPredicate(paths []string, inner map[resource.Kind]predicate) predicate {
	return func(r *resource.Resource, inc Includes) bool {
		for _, p := range paths {
			for _, ref := range r.References(p) {
				pred, ok := inner[ref.Kind]
				if !ok {
					continue
				}
				target := inc[ref]
				if target == nil {
					continue
				}
				if pred(target, inc) {
					return true
				}
			}
		}
		return false
	}
}

// dateRange is the half-open interval a date value covers at its precision.
type dateRange struct {
	start, end time.Time
}

func parseDateRange(s string) (dateRange, bool) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return dateRange{}, false
		}
		return dateRange{t, t.AddDate(1, 0, 0)}, true
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return dateRange{}, false
		}
		return dateRange{t, t.AddDate(0, 1, 0)}, true
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return dateRange{}, false
		}
		return dateRange{t, t.AddDate(0, 0, 1)}, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return dateRange{t, t.Add(time.Second)}, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return dateRange{t, t.Add(time.Second)}, true
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return dateRange{t, t.Add(time.Minute)}, true
	}
	return dateRange{}, false
}

var datePrefixes = []string{"eq", "ne", "gt", "lt", "ge", "le"}

func datePredicate(paths []string, value string) (predicate, error) {
	op := "eq"
	for _, p := range datePrefixes {
		if strings.HasPrefix(value, p) {
			op, value = p, value[len(p):]
			break
		}
	}
	want, ok := parseDateRange(value)
	if !ok {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidCriteria, value)
	}

	compare := func(got dateRange) bool {
		eq := !got.start.Before(want.start) && !got.end.After(want.end)
		switch op {
		case "ne":
			return !eq
		case "gt":
			return got.end.After(want.end)
		case "lt":
			return got.start.Before(want.start)
		case "ge":
			return eq || got.end.After(want.end)
		case "le":
			return eq || got.start.Before(want.start)
		default:
			return eq
		}
	}

	return func(r *resource.Resource, _ Includes) bool {
		for _, v := range valuesAt(r, paths) {
			s, ok := v.(string)
			if !ok {
				continue
			}
			got, ok := parseDateRange(s)
			if ok && compare(got) {
				return true
			}
		}
		return false
	}, nil
}

func containsKind(kinds []resource.Kind, k resource.Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// splitValues splits a parameter value on unescaped commas. "\," and "\\"
// are unescaped.
func splitValues(raw string) []string {
	var (
		out []string
		cur strings.Builder
	)
	escaped := false
	for _, c := range raw {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	out = append(out, cur.String())

	values := out[:0]
	for _, v := range out {
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
