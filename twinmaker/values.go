package twinmaker

import (
	"fmt"
	"math"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iottwinmaker/types"
)

// Exported properties come in one of two shapes:
//
//   - the service's own request shape, e.g.
//     {"value": {"stringValue": "x"}, "definition": {...}}, which exports made
//     for IoT TwinMaker already use; or
//   - plain JSON values, e.g. "x", 3 or {"nested": true}.
//
// Values decoded from JSON are strings, float64s, bools, []any, map[string]any
// or nil.

// propertyRequests converts the properties of one component.
func propertyRequests(properties map[string]any) (map[string]types.PropertyRequest, error) {
	if len(properties) == 0 {
		return nil, nil
	}
	requests := make(map[string]types.PropertyRequest, len(properties))
	for name, v := range properties {
		r, err := propertyRequest(v)
		if err != nil {
			return nil, fmt.Errorf("property %v: %w", name, err)
		}
		requests[name] = r
	}
	return requests, nil
}

func propertyRequest(v any) (types.PropertyRequest, error) {
	m, ok := v.(map[string]any)
	if !ok || m["value"] == nil {
		value, err := plainValue(v)
		if err != nil {
			return types.PropertyRequest{}, err
		}
		return types.PropertyRequest{Value: value}, nil
	}

	var r types.PropertyRequest
	value, err := dataValue(m["value"])
	if err != nil {
		return r, fmt.Errorf("value: %w", err)
	}
	r.Value = value
	if u, ok := m["updateType"].(string); ok {
		r.UpdateType = types.PropertyUpdateType(u)
	}
	if d, ok := m["definition"].(map[string]any); ok {
		r.Definition = definitionRequest(d)
	}
	return r, nil
}

// dataValue converts a value in the service's DataValue shape. A value that is
// not in that shape is converted as a plain value.
func dataValue(v any) (*types.DataValue, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return plainValue(v)
	}
	var dv types.DataValue
	switch {
	case m["stringValue"] != nil:
		s, ok := m["stringValue"].(string)
		if !ok {
			return nil, typeError("stringValue", m["stringValue"])
		}
		dv.StringValue = aws.String(s)
	case m["booleanValue"] != nil:
		b, ok := m["booleanValue"].(bool)
		if !ok {
			return nil, typeError("booleanValue", m["booleanValue"])
		}
		dv.BooleanValue = aws.Bool(b)
	case m["doubleValue"] != nil:
		f, ok := m["doubleValue"].(float64)
		if !ok {
			return nil, typeError("doubleValue", m["doubleValue"])
		}
		dv.DoubleValue = aws.Float64(f)
	case m["integerValue"] != nil:
		f, ok := m["integerValue"].(float64)
		if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, typeError("integerValue", m["integerValue"])
		}
		dv.IntegerValue = aws.Int32(int32(f))
	case m["longValue"] != nil:
		f, ok := m["longValue"].(float64)
		if !ok || f != math.Trunc(f) {
			return nil, typeError("longValue", m["longValue"])
		}
		dv.LongValue = aws.Int64(int64(f))
	case m["expression"] != nil:
		s, ok := m["expression"].(string)
		if !ok {
			return nil, typeError("expression", m["expression"])
		}
		dv.Expression = aws.String(s)
	case m["listValue"] != nil:
		items, ok := m["listValue"].([]any)
		if !ok {
			return nil, typeError("listValue", m["listValue"])
		}
		dv.ListValue = make([]types.DataValue, 0, len(items))
		for i, item := range items {
			v, err := dataValue(item)
			if err != nil {
				return nil, fmt.Errorf("listValue[%d]: %w", i, err)
			}
			if v != nil {
				dv.ListValue = append(dv.ListValue, *v)
			}
		}
	case m["mapValue"] != nil:
		entries, ok := m["mapValue"].(map[string]any)
		if !ok {
			return nil, typeError("mapValue", m["mapValue"])
		}
		dv.MapValue = make(map[string]types.DataValue, len(entries))
		for k, entry := range entries {
			v, err := dataValue(entry)
			if err != nil {
				return nil, fmt.Errorf("mapValue[%v]: %w", k, err)
			}
			if v != nil {
				dv.MapValue[k] = *v
			}
		}
	default:
		return plainValue(v)
	}
	return &dv, nil
}

// plainValue converts a plain JSON value. Numbers become doubles.
func plainValue(v any) (*types.DataValue, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &types.DataValue{StringValue: aws.String(v)}, nil
	case bool:
		return &types.DataValue{BooleanValue: aws.Bool(v)}, nil
	case float64:
		return &types.DataValue{DoubleValue: aws.Float64(v)}, nil
	case []any:
		list := make([]types.DataValue, 0, len(v))
		for i, item := range v {
			dv, err := plainValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if dv != nil {
				list = append(list, *dv)
			}
		}
		return &types.DataValue{ListValue: list}, nil
	case map[string]any:
		entries := make(map[string]types.DataValue, len(v))
		for k, entry := range v {
			dv, err := plainValue(entry)
			if err != nil {
				return nil, fmt.Errorf("[%v]: %w", k, err)
			}
			if dv != nil {
				entries[k] = *dv
			}
		}
		return &types.DataValue{MapValue: entries}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %v", reflect.TypeOf(v))
	}
}

// definitionRequest converts the inline definition of a property that its
// component type does not declare. Unknown fields are ignored.
func definitionRequest(m map[string]any) *types.PropertyDefinitionRequest {
	var d types.PropertyDefinitionRequest
	if dt, ok := m["dataType"].(map[string]any); ok {
		if t, ok := dt["type"].(string); ok {
			d.DataType = &types.DataType{Type: types.Type(t)}
		}
	}
	if b, ok := m["isTimeSeries"].(bool); ok {
		d.IsTimeSeries = aws.Bool(b)
	}
	if b, ok := m["isRequiredInEntity"].(bool); ok {
		d.IsRequiredInEntity = aws.Bool(b)
	}
	if b, ok := m["isExternalId"].(bool); ok {
		d.IsExternalId = aws.Bool(b)
	}
	if b, ok := m["isStoredExternally"].(bool); ok {
		d.IsStoredExternally = aws.Bool(b)
	}
	return &d
}

func typeError(field string, v any) error {
	return fmt.Errorf("%v: unsupported value %v of type %v", field, v, reflect.TypeOf(v))
}
