package types

import (
	"fmt"
	"strings"
)

// Binding maps a node property to the record column that feeds it.
type Binding struct {
	Property string
	Column   string
}

// NodeSpec declares one node label: its identity keys (merged on) and its
// descriptive properties (set after the merge).
type NodeSpec struct {
	Label NodeLabel
	Var   string
	Keys  []Binding
	Props []Binding
}

// RelSpec declares a relationship written by the row statement.
type RelSpec struct {
	From NodeLabel
	Type RelType
	To   NodeLabel
}

// GraphSchema is the fixed entity/relationship schema built from each row.
type GraphSchema struct {
	Nodes []NodeSpec
	Rels  []RelSpec
}

// Schema is the service-history graph schema. The row upsert statement, the
// in-memory driver and the text-to-Cypher prompt are all derived from it.
var Schema = GraphSchema{
	Nodes: []NodeSpec{
		{Label: LabelServiceRequest, Var: "sr",
			Keys:  []Binding{{"id", ColSRRefNo}},
			Props: []Binding{{"date", ColSRDate}, {"commission_date", ColCommissionDate}}},
		{Label: LabelMachine, Var: "machine",
			Keys: []Binding{{"model", ColMachineModel}, {"serial_number", ColSerialNumber}}},
		{Label: LabelComponent, Var: "component",
			Keys: []Binding{{"serial", ColComponentSerialNumber}, {"name", ColSubAssembly}}},
		{Label: LabelProblem, Var: "problem",
			Keys:  []Binding{{PropText, ColProblemReported}},
			Props: []Binding{{"description", ColProblem}, {"summary", ColProblemSummary}}},
		{Label: LabelFailureMode, Var: "failure", Keys: []Binding{{"type", ColFailureMode}}},
		{Label: LabelCause, Var: "cause", Keys: []Binding{{PropText, ColCause}}},
		{Label: LabelCorrectiveAction, Var: "action", Keys: []Binding{{PropText, ColCorrectiveAction}}},
		{Label: LabelProductCategory, Var: "category", Keys: []Binding{{"name", ColProductCategory}}},
		{Label: LabelAssignedAccount, Var: "account", Keys: []Binding{{"name", ColAssignedAccount}}},
		{Label: LabelCustomer, Var: "customer", Keys: []Binding{{"name", ColName}}},
		{Label: LabelActivityType, Var: "activity", Keys: []Binding{{"type", ColTypeOfActivity}}},
		{Label: LabelDefect, Var: "defect", Keys: []Binding{{"code", ColDefectNo}}},
		{Label: LabelMake, Var: "make", Keys: []Binding{{"name", ColMake}}},
		{Label: LabelComplaintCategory, Var: "complaint", Keys: []Binding{{"category", ColComplaintCategory}}},
	},
	Rels: []RelSpec{
		{LabelServiceRequest, RelOnMachine, LabelMachine},
		{LabelServiceRequest, RelAssignedTo, LabelAssignedAccount},
		{LabelServiceRequest, RelHasCustomer, LabelCustomer},
		{LabelServiceRequest, RelHasActivity, LabelActivityType},
		{LabelServiceRequest, RelHasComplaintCategory, LabelComplaintCategory},
		{LabelMachine, RelMadeBy, LabelMake},
		{LabelMachine, RelBelongsTo, LabelProductCategory},
		{LabelMachine, RelHasComponent, LabelComponent},
		{LabelComponent, RelHasProblem, LabelProblem},
		{LabelProblem, RelDefinedBy, LabelDefect},
		{LabelProblem, RelHasFailureMode, LabelFailureMode},
		{LabelProblem, RelCausedBy, LabelCause},
		{LabelCause, RelResolvedBy, LabelCorrectiveAction},
	},
}

// Node returns the spec for a label.
func (s GraphSchema) Node(label NodeLabel) (NodeSpec, bool) {
	for _, n := range s.Nodes {
		if n.Label == label {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// Describe renders the schema in the form text-to-Cypher prompts expect.
func (s GraphSchema) Describe() string {
	var b strings.Builder
	b.WriteString("Node properties:\n")
	for _, n := range s.Nodes {
		props := make([]string, 0, len(n.Keys)+len(n.Props)+1)
		for _, k := range n.Keys {
			props = append(props, k.Property+": STRING")
		}
		for _, p := range n.Props {
			props = append(props, p.Property+": STRING")
		}
		if n.Label == LabelProblem || n.Label == LabelCause || n.Label == LabelCorrectiveAction {
			props = append(props, PropEmbedding+": LIST<FLOAT>")
		}
		fmt.Fprintf(&b, "%s {%s}\n", n.Label, strings.Join(props, ", "))
	}
	b.WriteString("Relationship properties:\n")
	fmt.Fprintf(&b, "%s {%s: FLOAT}\n", RelSimilarTo, PropScore)
	b.WriteString("The relationships:\n")
	for _, r := range s.Rels {
		fmt.Fprintf(&b, "(:%s)-[:%s]->(:%s)\n", r.From, r.Type, r.To)
	}
	for _, l := range []NodeLabel{LabelProblem, LabelCause, LabelCorrectiveAction} {
		fmt.Fprintf(&b, "(:%s)-[:%s]->(:%s)\n", l, RelSimilarTo, l)
	}
	return b.String()
}
