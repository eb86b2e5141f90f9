package delta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dropsheet/patchd/internal/doc"
)

// FormatError reports a value that does not have the shape of a delta.
type FormatError struct {
	Path    string
	Message string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "invalid delta: " + e.Message
	}
	return fmt.Sprintf("invalid delta at %s: %s", e.Path, e.Message)
}

// DecodeJSON parses JSON bytes into a Delta.
func DecodeJSON(data []byte) (Delta, error) {
	raw, err := doc.UnmarshalValue(data)
	if err != nil {
		return nil, &FormatError{Message: err.Error()}
	}
	return Decode(raw)
}

// Decode converts a decoded JSON value into a Delta by structural pattern
// matching. A nil raw value decodes to a nil Delta, which applies as a no-op.
func Decode(raw any) (Delta, error) {
	return decode(raw, "")
}

func decode(raw any, path string) (Delta, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return decodeLeaf(v, path)
	case map[string]any:
		if tag, ok := v["_t"]; ok {
			if tag != ArrayTag {
				return nil, &FormatError{Path: path, Message: fmt.Sprintf("unknown _t tag %v", tag)}
			}
			return decodeArray(v, path)
		}
		return decodeObject(v, path)
	case doc.Record:
		return decodeObject(v, path)
	default:
		return nil, &FormatError{Path: path, Message: fmt.Sprintf("expected array or object, got %T", raw)}
	}
}

func decodeLeaf(tuple []any, path string) (Delta, error) {
	switch len(tuple) {
	case 1:
		return Set{Value: tuple[0]}, nil
	case 2:
		return Replace{Old: tuple[0], New: tuple[1]}, nil
	case 3:
		op, ok := doc.AsInt(tuple[2])
		if !ok {
			return nil, &FormatError{Path: path, Message: fmt.Sprintf("op code %v is not an integer", tuple[2])}
		}
		switch op {
		case OpDelete:
			return Delete{Old: tuple[0]}, nil
		case OpText:
			s, ok := tuple[0].(string)
			if !ok {
				return nil, &FormatError{Path: path, Message: "text delta patch must be a string"}
			}
			return Text{Patch: s}, nil
		case OpMove:
			return nil, &FormatError{Path: path, Message: "move marker outside an array delta"}
		default:
			return nil, &FormatError{Path: path, Message: fmt.Sprintf("unknown op code %d", op)}
		}
	default:
		return nil, &FormatError{Path: path, Message: fmt.Sprintf("leaf tuple has %d elements", len(tuple))}
	}
}

func decodeObject(m map[string]any, path string) (Delta, error) {
	out := make(Object, len(m))
	for key, raw := range m {
		sub, err := decode(raw, path+"/"+escapePointer(key))
		if err != nil {
			return nil, err
		}
		if sub != nil {
			out[key] = sub
		}
	}
	return out, nil
}

func decodeArray(m map[string]any, path string) (Delta, error) {
	out := &Array{}
	for key, raw := range m {
		if key == "_t" {
			continue
		}
		if key == AppendKey {
			out.Push(raw)
			continue
		}
		keyPath := path + "/" + key

		if strings.HasPrefix(key, "_") {
			index, err := parseIndex(key[1:], keyPath)
			if err != nil {
				return nil, err
			}
			tuple, ok := raw.([]any)
			if !ok || len(tuple) != 3 {
				return nil, &FormatError{Path: keyPath, Message: "removal must be a 3-element tuple"}
			}
			op, _ := doc.AsInt(tuple[2])
			switch op {
			case OpDelete:
				out.Remove(index, tuple[0])
			case OpMove:
				to, ok := doc.AsInt(tuple[1])
				if !ok || to < 0 {
					return nil, &FormatError{Path: keyPath, Message: "move target must be a non-negative integer"}
				}
				out.Move(index, int(to))
			default:
				return nil, &FormatError{Path: keyPath, Message: fmt.Sprintf("removal op code %v", tuple[2])}
			}
			continue
		}

		index, err := parseIndex(key, keyPath)
		if err != nil {
			return nil, err
		}
		sub, err := decode(raw, keyPath)
		if err != nil {
			return nil, err
		}
		switch s := sub.(type) {
		case nil:
		case Set:
			out.Insert(index, s.Value)
		default:
			out.Modify(index, s)
		}
	}
	return out, nil
}

func parseIndex(s, path string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &FormatError{Path: path, Message: fmt.Sprintf("%q is not an array index", s)}
	}
	return n, nil
}

// escapePointer escapes a key for use in a JSON-pointer style path.
func escapePointer(key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	return strings.ReplaceAll(key, "/", "~1")
}
