package http

import "grafeodb/server/engine"

// valueToJSON converts an engine.Value into a plain interface{} suitable
// for encoding/json, used identically by the streaming and materialized
// encoding paths so their byte output is indistinguishable (spec
// invariant 4).
func valueToJSON(v engine.Value) interface{} {
	switch {
	case v.Null:
		return nil
	case v.Bool != nil:
		return *v.Bool
	case v.Int != nil:
		return *v.Int
	case v.Float != nil:
		return *v.Float
	case v.Str != nil:
		return *v.Str
	case v.Ident != nil:
		return *v.Ident
	case v.List != nil:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = valueToJSON(e)
		}
		return out
	case v.Map != nil:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = valueToJSON(e)
		}
		return out
	case v.Node != nil:
		return v.Node
	case v.Edge != nil:
		return v.Edge
	default:
		return nil
	}
}

func rowToJSON(row []engine.Value) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = valueToJSON(v)
	}
	return out
}
