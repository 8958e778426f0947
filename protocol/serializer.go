package protocol

import "encoding/json"

// Serializer defines the contract for serializing snapshot and message
// payloads. It allows hosts to choose their preferred format while
// interacting with the engine; the engine ships a JSON default.
type Serializer interface {
	// Marshal serializes a Go struct into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error
}

// DefaultJSONSerializer implements Serializer using encoding/json.
type DefaultJSONSerializer struct{}

// Marshal implements Serializer.
func (s *DefaultJSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements Serializer.
func (s *DefaultJSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
