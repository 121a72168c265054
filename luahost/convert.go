package luahost

import (
	"fmt"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// fromLua converts a statement argument. Integral numbers become int64 so
// drivers bind them as integers. ok is false for values no driver can bind,
// such as tables, functions and userdata.
func fromLua(v lua.LValue) (arg any, ok bool) {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, true
	case lua.LBool:
		return bool(v), true
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), true
		}
		return f, true
	case lua.LString:
		return string(v), true
	default:
		return nil, false
	}
}

func toLua(v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case time.Time:
		return lua.LString(v.Format(time.RFC3339))
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
