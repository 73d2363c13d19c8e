package storage

import "encoding/json"

// serializableNode/serializableEdge/serializableVector are the
// JSON-encoded forms of the primary entity records, the same
// encode/decode split the teacher uses in pkg/storage/badger.go
// (encodeNode/decodeNode), adapted for 128-bit ids and the typed
// Value property model.
type serializableNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Properties map[string]Value  `json:"properties,omitempty"`
}

type serializableEdge struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Properties map[string]Value  `json:"properties,omitempty"`
}

type serializableVector struct {
	ID         string            `json:"id"`
	Level      uint8             `json:"level"`
	Data       []float32         `json:"data"`
	Properties map[string]Value  `json:"properties,omitempty"`
}

func encodeNode(n *Node) ([]byte, error) {
	return json.Marshal(serializableNode{
		ID:         n.ID.String(),
		Label:      n.Label,
		Properties: normalizeProps(n.Properties),
	})
}

func decodeNode(data []byte) (*Node, error) {
	var sn serializableNode
	if err := json.Unmarshal(data, &sn); err != nil {
		return nil, err
	}
	id, err := ParseID(sn.ID)
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, Label: sn.Label, Properties: sn.Properties}, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	return json.Marshal(serializableEdge{
		ID:         e.ID.String(),
		Label:      e.Label,
		From:       e.From.String(),
		To:         e.To.String(),
		Properties: normalizeProps(e.Properties),
	})
}

func decodeEdge(data []byte) (*Edge, error) {
	var se serializableEdge
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, err
	}
	id, err := ParseID(se.ID)
	if err != nil {
		return nil, err
	}
	from, err := ParseID(se.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseID(se.To)
	if err != nil {
		return nil, err
	}
	return &Edge{ID: id, Label: se.Label, From: from, To: to, Properties: se.Properties}, nil
}

func encodeVector(v *HVector) ([]byte, error) {
	return json.Marshal(serializableVector{
		ID:         v.ID.String(),
		Level:      v.Level,
		Data:       v.Data,
		Properties: normalizeProps(v.Properties),
	})
}

func decodeVector(data []byte) (*HVector, error) {
	var sv serializableVector
	if err := json.Unmarshal(data, &sv); err != nil {
		return nil, err
	}
	id, err := ParseID(sv.ID)
	if err != nil {
		return nil, err
	}
	return &HVector{ID: id, Level: sv.Level, Data: sv.Data, Properties: sv.Properties}, nil
}
