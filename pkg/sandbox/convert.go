package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// goValueToLua converts a Go input value to its Lua representation.
func goValueToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.RawSetInt(tbl, i+1, goValueToLua(L, item))
		}
		return tbl
	case map[string]any:
		return goMapToLuaTable(L, val)
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func goMapToLuaTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, goValueToLua(L, v))
	}
	return tbl
}

// luaValueToGo converts a Lua result value to a plain Go value. Only
// booleans, numbers, strings, sequences, and string-keyed tables are
// representable; anything else (functions, userdata, channels, mixed-key
// tables) fails the conversion.
func luaValueToGo(v lua.LValue) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		return luaTableToGo(val)
	default:
		return nil, fmt.Errorf("value of type %s is not serializable", v.Type())
	}
}

// luaTableToGo converts a table to []any when its keys form the sequence
// 1..n, or to map[string]any when all keys are strings.
func luaTableToGo(tbl *lua.LTable) (any, error) {
	numKeys := 0
	strKeys := 0
	maxIdx := 0
	var convErr error

	tbl.ForEach(func(k, _ lua.LValue) {
		switch key := k.(type) {
		case lua.LNumber:
			numKeys++
			if idx := int(key); idx > maxIdx {
				maxIdx = idx
			}
		case lua.LString:
			strKeys++
		default:
			convErr = fmt.Errorf("table key of type %s is not serializable", k.Type())
		}
	})
	if convErr != nil {
		return nil, convErr
	}
	if numKeys > 0 && strKeys > 0 {
		return nil, fmt.Errorf("table mixes sequence and string keys")
	}

	if strKeys == 0 {
		// Sequence (an empty table serializes as an empty mapping).
		if numKeys == 0 {
			return map[string]any{}, nil
		}
		if numKeys != maxIdx {
			return nil, fmt.Errorf("sparse sequence is not serializable")
		}
		arr := make([]any, maxIdx)
		tbl.ForEach(func(k, v lua.LValue) {
			if convErr != nil {
				return
			}
			idx := int(k.(lua.LNumber)) - 1
			item, err := luaValueToGo(v)
			if err != nil {
				convErr = err
				return
			}
			arr[idx] = item
		})
		if convErr != nil {
			return nil, convErr
		}
		return arr, nil
	}

	out := make(map[string]any, strKeys)
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		item, err := luaValueToGo(v)
		if err != nil {
			convErr = err
			return
		}
		out[string(k.(lua.LString))] = item
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
