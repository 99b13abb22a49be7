package mqtt

import (
	"fmt"
	"sort"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

// Fields is the content of a message.
// Values are string, bool, float64, int, int64, uint64, nil or []interface{}.
type Fields map[string]interface{}

// Keys returns sorted keys.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GetString gets a string field.
func (f Fields) GetString(key string) string {
	s, _ := f[key].(string)
	return s
}

// GetNumber gets a numeric field.
func (f Fields) GetNumber(key string) float64 {
	n, _ := f[key].(float64)
	return n
}

// GetBool gets a bool field.
func (f Fields) GetBool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Encode marshals fields as google.protobuf.Struct.
func Encode(fields Fields) ([]byte, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for key, val := range fields {
		v, err := toValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		s.Fields[key] = v
	}
	return proto.Marshal(s)
}

// DecodeReport unmarshals a message published by Reporter.
func DecodeReport(data []byte) (Fields, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	fields := make(Fields, len(s.Fields))
	for key, val := range s.Fields {
		fields[key] = fromValue(val)
	}
	return fields, nil
}

func toValue(val interface{}) (*structpb.Value, error) {
	switch v := val.(type) {
	case nil:
		return &structpb.Value{Kind: &structpb.Value_NullValue{}}, nil
	case string:
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}, nil
	case bool:
		return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}, nil
	case float64:
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}, nil
	case int:
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(v)}}, nil
	case int64:
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(v)}}, nil
	case uint64:
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(v)}}, nil
	case []interface{}:
		lst := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for _, item := range v {
			iv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			lst.Values = append(lst.Values, iv)
		}
		return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: lst}}, nil
	}
	return nil, fmt.Errorf("unsupported type %T", val)
}

func fromValue(v *structpb.Value) interface{} {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NumberValue:
		return k.NumberValue
	case *structpb.Value_ListValue:
		items := make([]interface{}, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			items = append(items, fromValue(item))
		}
		return items
	case *structpb.Value_StructValue:
		fields := make(Fields, len(k.StructValue.GetFields()))
		for key, item := range k.StructValue.GetFields() {
			fields[key] = fromValue(item)
		}
		return fields
	}
	return nil
}
