package notion

// Query is the body of POST /v1/databases/{id}/query.
type Query struct {
	Filter *Filter `json:"filter,omitempty"`
	Sorts  []Sort  `json:"sorts,omitempty"`
}

// Filter is either a compound filter (And) or a single property condition.
type Filter struct {
	And []Filter `json:"and,omitempty"`

	Property string           `json:"property,omitempty"`
	People   *PeopleCondition `json:"people,omitempty"`
	Status   *StatusCondition `json:"status,omitempty"`
}

type PeopleCondition struct {
	Contains string `json:"contains"`
}

type StatusCondition struct {
	DoesNotEqual string `json:"does_not_equal"`
}

type Direction string

const Ascending Direction = "ascending"

type Sort struct {
	Property  string    `json:"property"`
	Direction Direction `json:"direction"`
}

// PeopleContains matches records whose people property includes userID.
func PeopleContains(property, userID string) Filter {
	return Filter{Property: property, People: &PeopleCondition{Contains: userID}}
}

// StatusNot matches records whose status property is not label.
func StatusNot(property, label string) Filter {
	return Filter{Property: property, Status: &StatusCondition{DoesNotEqual: label}}
}

// And combines filters; a single filter is returned unwrapped.
func And(filters ...Filter) *Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		f := filters[0]
		return &f
	}
	return &Filter{And: filters}
}
