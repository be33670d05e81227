package sandbox

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

// violationMarker tags errors raised by guard tables so the executor can
// classify them as capability violations rather than plain runtime faults.
const violationMarker = "capability violation"

// guardModule installs a global table for a module outside the allow-list.
// Any access raises a tagged error, failing the execution instead of letting
// it partially succeed with nil lookups. The metatable is protected so the
// guard cannot be stripped from inside the sandbox.
func guardModule(L *lua.LState, name string) {
	raise := L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s: module '%s' is not in the allow-list", violationMarker, name)
		return 0
	})

	mt := L.NewTable()
	L.SetField(mt, "__index", raise)
	L.SetField(mt, "__newindex", raise)
	L.SetField(mt, "__call", raise)
	L.SetField(mt, "__metatable", lua.LString("protected"))

	tbl := L.NewTable()
	L.SetMetatable(tbl, mt)
	L.SetGlobal(name, tbl)
}

// registerJSONModule exposes json.encode and json.decode (data formatting).
func registerJSONModule(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "encode", L.NewFunction(func(L *lua.LState) int {
		goVal, err := luaValueToGo(L.CheckAny(1))
		if err != nil {
			L.RaiseError("json.encode: %s", err.Error())
			return 0
		}
		b, err := json.Marshal(goVal)
		if err != nil {
			L.RaiseError("json.encode: %s", err.Error())
			return 0
		}
		L.Push(lua.LString(b))
		return 1
	}))

	L.SetField(mod, "decode", L.NewFunction(func(L *lua.LState) int {
		var v any
		if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
			L.RaiseError("json.decode: %s", err.Error())
			return 0
		}
		L.Push(goValueToLua(L, v))
		return 1
	}))

	L.SetGlobal("json", mod)
}

// registerCSVModule exposes csv.parse and csv.write (tabular parsing).
func registerCSVModule(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "parse", L.NewFunction(func(L *lua.LState) int {
		reader := csv.NewReader(strings.NewReader(L.CheckString(1)))
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			L.RaiseError("csv.parse: %s", err.Error())
			return 0
		}
		rows := L.NewTable()
		for i, record := range records {
			row := L.NewTable()
			for j, field := range record {
				L.RawSetInt(row, j+1, lua.LString(field))
			}
			L.RawSetInt(rows, i+1, row)
		}
		L.Push(rows)
		return 1
	}))

	L.SetField(mod, "write", L.NewFunction(func(L *lua.LState) int {
		goVal, err := luaValueToGo(L.CheckTable(1))
		if err != nil {
			L.RaiseError("csv.write: %s", err.Error())
			return 0
		}
		rows, ok := goVal.([]any)
		if !ok {
			L.RaiseError("csv.write: expected a sequence of rows")
			return 0
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		for _, r := range rows {
			fields, ok := r.([]any)
			if !ok {
				L.RaiseError("csv.write: each row must be a sequence")
				return 0
			}
			record := make([]string, len(fields))
			for i, f := range fields {
				record[i] = stringifyField(f)
			}
			if err := w.Write(record); err != nil {
				L.RaiseError("csv.write: %s", err.Error())
				return 0
			}
		}
		w.Flush()
		L.Push(lua.LString(buf.String()))
		return 1
	}))

	L.SetGlobal("csv", mod)
}

func stringifyField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// registerStatsModule exposes descriptive statistics over numeric sequences:
// sum, mean, median, min, max, stdev (sample standard deviation).
func registerStatsModule(L *lua.LState) {
	mod := L.NewTable()

	register := func(name string, minLen int, fn func([]float64) float64) {
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			nums, err := checkNumbers(L.CheckTable(1))
			if err != nil {
				L.RaiseError("stats.%s: %s", name, err.Error())
				return 0
			}
			if len(nums) < minLen {
				L.RaiseError("stats.%s: requires at least %d data points", name, minLen)
				return 0
			}
			L.Push(lua.LNumber(fn(nums)))
			return 1
		}))
	}

	register("sum", 0, sum)
	register("mean", 1, mean)
	register("median", 1, median)
	register("min", 1, func(nums []float64) float64 {
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Min(m, n)
		}
		return m
	})
	register("max", 1, func(nums []float64) float64 {
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Max(m, n)
		}
		return m
	})
	register("stdev", 2, stdev)

	L.SetGlobal("stats", mod)
}

func checkNumbers(tbl *lua.LTable) ([]float64, error) {
	goVal, err := luaTableToGo(tbl)
	if err != nil {
		return nil, err
	}
	seq, ok := goVal.([]any)
	if !ok {
		return nil, errNotNumericSequence
	}
	nums := make([]float64, len(seq))
	for i, v := range seq {
		n, ok := v.(float64)
		if !ok {
			return nil, errNotNumericSequence
		}
		nums[i] = n
	}
	return nums, nil
}

var errNotNumericSequence = errors.New("expected a sequence of numbers")

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}

func mean(nums []float64) float64 {
	return sum(nums) / float64(len(nums))
}

func median(nums []float64) float64 {
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stdev(nums []float64) float64 {
	m := mean(nums)
	total := 0.0
	for _, n := range nums {
		total += (n - m) * (n - m)
	}
	return math.Sqrt(total / float64(len(nums)-1))
}
