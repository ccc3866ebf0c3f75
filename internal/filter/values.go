// Package filter turns a sparse set of caller-supplied filter values into
// typed criteria and then into an ordered list of parameterized predicates.
//
// The pipeline has two steps:
//
//	criteria, err := filter.Parse(values, loc)        // shape coercion only
//	preds := filter.Build(criteria, columns)           // one predicate per present key
//	where, args := filter.Render(base, preds, 1)       // "? " -> "$n"
//
// Caller-controlled values only ever travel as bound arguments; fragment text
// comes from the Columns a target declares.
package filter

import (
	"net/url"
	"strings"
)

// Key names one filter in the shared vocabulary.
type Key string

// Filter vocabulary. The declaration order is the order predicates are emitted in.
const (
	KeyStartDate       Key = "start_date"
	KeyEndDate         Key = "end_date"
	KeyJurisdiction    Key = "jurisdiction"
	KeyWasteType       Key = "waste_type_id"
	KeyCollectionPoint Key = "collection_point_id"
	KeyBusinessType    Key = "business_type"
	KeyServiceCategory Key = "service_category"
	KeyBounds          Key = "bounds"
	KeyActor           Key = "actor_id"
	KeyAction          Key = "action"
	KeyEntityType      Key = "entity_type"
)

// Vocabulary lists every recognized key in emission order.
var Vocabulary = []Key{
	KeyStartDate,
	KeyEndDate,
	KeyJurisdiction,
	KeyWasteType,
	KeyCollectionPoint,
	KeyBusinessType,
	KeyServiceCategory,
	KeyBounds,
	KeyActor,
	KeyAction,
	KeyEntityType,
}

// aliases lists the query parameter names accepted by the HTTP API for each
// key. The camelCase names are the ones existing map and report clients send.
// When several aliases of one key are present, the first listed wins.
var aliases = []struct {
	name string
	key  Key
}{
	{"startDate", KeyStartDate},
	{"endDate", KeyEndDate},
	{"lga", KeyJurisdiction},
	{"localGovernmentArea", KeyJurisdiction},
	{"wasteTypeId", KeyWasteType},
	{"collectionPointId", KeyCollectionPoint},
	{"collectionPoint", KeyCollectionPoint},
	{"type", KeyBusinessType},
	{"businessType", KeyBusinessType},
	{"category", KeyServiceCategory},
	{"serviceCategory", KeyServiceCategory},
	{"userId", KeyActor},
	{"tableName", KeyEntityType},
}

// Values is a sparse set of raw filter values. Missing and empty entries are
// treated the same: the filter is absent.
type Values map[Key]string

// FromQuery extracts filter values from URL query parameters. Both the
// snake_case key names and their camelCase aliases are accepted; unknown
// parameters are ignored.
func FromQuery(q url.Values) Values {
	v := Values{}
	for _, k := range Vocabulary {
		if s := strings.TrimSpace(q.Get(string(k))); s != "" {
			v[k] = s
		}
	}
	for _, a := range aliases {
		if _, ok := v[a.key]; ok {
			continue
		}
		if s := strings.TrimSpace(q.Get(a.name)); s != "" {
			v[a.key] = s
		}
	}
	return v
}

// Get returns the trimmed value for k, or "" when absent.
func (v Values) Get(k Key) string {
	return strings.TrimSpace(v[k])
}

// Has reports whether k is present and non-empty.
func (v Values) Has(k Key) bool {
	return v.Get(k) != ""
}

// Clone returns a copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}
