package fragment

// RelationKind names the TREE relation type of an edge.
type RelationKind string

const (
	Generic            RelationKind = "https://w3id.org/tree#Relation"
	GreaterThanOrEqual RelationKind = "https://w3id.org/tree#GreaterThanOrEqualToRelation"
	LessThan           RelationKind = "https://w3id.org/tree#LessThanRelation"
)

// DateTimeType is the value type of time-based relation values.
const DateTimeType = "http://www.w3.org/2001/XMLSchema#dateTime"

// TreeRelation is a directed edge to Node. Generic relations carry no value.
type TreeRelation struct {
	Node      Identifier   `json:"node"`
	Kind      RelationKind `json:"kind"`
	Value     string       `json:"value,omitempty"`
	ValueType string       `json:"valueType,omitempty"`
	Path      string       `json:"path,omitempty"`
}

// GenericRelation builds an untyped edge to node.
func GenericRelation(node Identifier) TreeRelation {
	return TreeRelation{Node: node, Kind: Generic}
}

// Equal compares relations, using set semantics for the target identifier.
func (r TreeRelation) Equal(o TreeRelation) bool {
	return r.Kind == o.Kind && r.Value == o.Value && r.ValueType == o.ValueType &&
		r.Path == o.Path && r.Node.Equal(o.Node)
}
