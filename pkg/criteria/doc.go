// Package criteria compiles subscription criteria into matchers.
//
// A criteria string has the form "<ResourceType>?<query>", for example
// "Observation?code=http://loinc.org|8867-4&subject.active=true". The
// resource type selects a QueryBuilder holding that type's search parameter
// table; the builder turns the query into a Matcher.
//
// # Query Semantics
//
//   - Repeated parameters are AND-ed; comma-separated values are OR-ed.
//   - Token, string, reference and date parameter types are supported,
//     plus _id and _lastUpdated on every type.
//   - Modifiers: :missing on every parameter, :not on tokens, :exact and
//     :contains on strings, a type name on references (subject:Patient=1).
//   - One level of chaining through a reference parameter
//     (subject.name=smith, subject:Patient.active=true).
//
// # Evaluation
//
// A Matcher only answers whether a resource matches; it never materializes
// a result set. Chained parameters need the referenced resource, so
// evaluation is split in two: Resolve fetches the references the matcher's
// chains traverse, then Matches decides using those includes.
package criteria
