// Package canonical defines the result types every provider's output is
// normalized into, and the JSON schemas used to request and validate them.
package canonical

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ReceiptItem is a single line of a parsed receipt. Price is the unit price.
type ReceiptItem struct {
	Item     string  `json:"item"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// ReceiptDocument is the canonical result of parse_receipt
type ReceiptDocument struct {
	Items    []ReceiptItem `json:"items"`
	Subtotal float64       `json:"subtotal"`
}

// ItemRef points at a receipt item by id
type ItemRef struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// PersonAssignment is the list form providers are asked to emit
type PersonAssignment struct {
	PersonName string    `json:"person_name"`
	Items      []ItemRef `json:"items"`
}

// AssignmentResult is the canonical result of assign_people_to_items
type AssignmentResult struct {
	Assignments     map[string][]ItemRef `json:"assignments"`
	SharedItems     []ItemRef            `json:"shared_items"`
	UnassignedItems []ItemRef            `json:"unassigned_items"`
}

// UnmarshalJSON accepts both the canonical map form ("assignments") and the
// provider list form ("person_assignments"). Entries for the same person are
// merged.
func (a *AssignmentResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Assignments       map[string][]ItemRef `json:"assignments"`
		PersonAssignments []PersonAssignment   `json:"person_assignments"`
		SharedItems       []ItemRef            `json:"shared_items"`
		UnassignedItems   []ItemRef            `json:"unassigned_items"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	a.Assignments = wire.Assignments
	if a.Assignments == nil {
		a.Assignments = make(map[string][]ItemRef)
	}
	for _, pa := range wire.PersonAssignments {
		name := strings.TrimSpace(pa.PersonName)
		a.Assignments[name] = append(a.Assignments[name], pa.Items...)
	}
	for name, refs := range a.Assignments {
		if refs == nil {
			a.Assignments[name] = []ItemRef{}
		}
	}

	a.SharedItems = wire.SharedItems
	if a.SharedItems == nil {
		a.SharedItems = []ItemRef{}
	}
	a.UnassignedItems = wire.UnassignedItems
	if a.UnassignedItems == nil {
		a.UnassignedItems = []ItemRef{}
	}
	return nil
}

// ReceiptItemRef is a receipt item as supplied by the client to
// assign_people_to_items. Clients send the name as either "item" or "name".
type ReceiptItemRef struct {
	ID       *int    `json:"id"`
	Item     string  `json:"item,omitempty"`
	Name     string  `json:"name,omitempty"`
	Quantity *int    `json:"quantity"`
	Price    float64 `json:"price"`
}

// CheckQuantities verifies that every input item's quantity is fully
// accounted for across assignments, shared items and unassigned items, and
// that the result references no unknown ids.
func (a *AssignmentResult) CheckQuantities(items []ReceiptItemRef) error {
	want := make(map[int]int, len(items))
	for _, it := range items {
		if it.ID == nil {
			return fmt.Errorf("receipt item without id")
		}
		if it.Quantity == nil {
			return fmt.Errorf("receipt item %d without quantity", *it.ID)
		}
		want[*it.ID] += *it.Quantity
	}

	var problems []string
	got := make(map[int]int, len(want))
	tally := func(bucket string, refs []ItemRef) {
		for _, ref := range refs {
			if _, ok := want[ref.ID]; !ok {
				problems = append(problems, fmt.Sprintf("%s references unknown item id %d", bucket, ref.ID))
				continue
			}
			if ref.Quantity < 0 {
				problems = append(problems, fmt.Sprintf("%s assigns negative quantity %d to item %d", bucket, ref.Quantity, ref.ID))
				continue
			}
			got[ref.ID] += ref.Quantity
		}
	}

	people := make([]string, 0, len(a.Assignments))
	for name := range a.Assignments {
		people = append(people, name)
	}
	sort.Strings(people)
	for _, name := range people {
		tally(fmt.Sprintf("assignments[%s]", name), a.Assignments[name])
	}
	tally("shared_items", a.SharedItems)
	tally("unassigned_items", a.UnassignedItems)

	ids := make([]int, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if got[id] != want[id] {
			problems = append(problems, fmt.Sprintf("item %d: %d of %d accounted for", id, got[id], want[id]))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("quantity mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Transcript is the canonical result of transcribe_audio
type Transcript struct {
	Text string `json:"text"`
}
