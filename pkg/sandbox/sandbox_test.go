package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(opts...)
	require.NoError(t, err)
	return e
}

func TestExecuteStatistics(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    local numbers = inputs.numbers
    return {
        sum = stats.sum(numbers),
        average = stats.mean(numbers),
        min = stats.min(numbers),
        max = stats.max(numbers),
    }
end
`
	outputs, err := e.Execute(context.Background(), code, map[string]any{
		"numbers": []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"sum":     float64(6),
		"average": float64(2),
		"min":     float64(1),
		"max":     float64(3),
	}, outputs)
}

func TestExecuteFactorial(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    local n = inputs.n
    if n == nil or n < 0 or math.floor(n) ~= n then
        error("n must be a non-negative integer")
    end
    local result = 1
    for i = 2, n do
        result = result * i
    end
    return { result = result }
end
`
	outputs, err := e.Execute(context.Background(), code, map[string]any{"n": 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": float64(120)}, outputs)
}

func TestExecuteNilInputs(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    return { empty = type(inputs) == "table" }
end
`
	outputs, err := e.Execute(context.Background(), code, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"empty": true}, outputs)
}

func TestExecuteNestedOutputs(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    return {
        name = "report",
        ok = true,
        rows = { 1, 2, 3 },
        meta = { source = "test", count = 3 },
    }
end
`
	outputs, err := e.Execute(context.Background(), code, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name": "report",
		"ok":   true,
		"rows": []any{float64(1), float64(2), float64(3)},
		"meta": map[string]any{"source": "test", "count": float64(3)},
	}, outputs)
}

func TestExecuteEntryPointMissing(t *testing.T) {
	e := newTestExecutor(t)

	t.Run("no function defined", func(t *testing.T) {
		outputs, err := e.Execute(context.Background(), `local x = 1`, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, EntryPointMissing), "got %v", err)
	})

	t.Run("wrong name", func(t *testing.T) {
		outputs, err := e.Execute(context.Background(), `function main(inputs) return {} end`, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, EntryPointMissing), "got %v", err)
	})

	t.Run("entry point is not a function", func(t *testing.T) {
		outputs, err := e.Execute(context.Background(), `run_skill = 42`, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, EntryPointMissing), "got %v", err)
	})
}

func TestExecuteCapabilityViolation(t *testing.T) {
	t.Run("forbidden module", func(t *testing.T) {
		e := newTestExecutor(t)
		code := `
function run_skill(inputs)
    local f = io.open("/etc/passwd")
    return {}
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, CapabilityViolation), "got %v", err)
	})

	t.Run("forbidden module stays guarded with full allow-list", func(t *testing.T) {
		e := newTestExecutor(t, WithAllowedModules(AllModules()...))
		code := `
function run_skill(inputs)
    os.execute("true")
    return {}
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, CapabilityViolation), "got %v", err)
	})

	t.Run("non-granted module", func(t *testing.T) {
		e := newTestExecutor(t, WithAllowedModules(ModuleMath))
		code := `
function run_skill(inputs)
    return { rows = csv.parse("a,b\n1,2") }
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, CapabilityViolation), "got %v", err)
	})

	t.Run("granted module still works under a restricted set", func(t *testing.T) {
		e := newTestExecutor(t, WithAllowedModules(ModuleMath))
		code := `
function run_skill(inputs)
    return { value = math.sqrt(inputs.n) }
end
`
		outputs, err := e.Execute(context.Background(), code, map[string]any{"n": 9})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"value": float64(3)}, outputs)
	})

	t.Run("violation at load time", func(t *testing.T) {
		e := newTestExecutor(t)
		// Top-level access, before run_skill is even defined.
		code := `
local h = io.popen("true")
function run_skill(inputs) return {} end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, CapabilityViolation), "got %v", err)
	})
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(t, WithTimeout(100*time.Millisecond))

	code := `
function run_skill(inputs)
    while true do end
end
`
	start := time.Now()
	outputs, err := e.Execute(context.Background(), code, nil)
	elapsed := time.Since(start)

	assert.Nil(t, outputs, "a timed-out execution yields no partial output")
	assert.True(t, IsKind(err, ExecutionTimeout), "got %v", err)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecuteRuntimeError(t *testing.T) {
	e := newTestExecutor(t)

	t.Run("explicit error call", func(t *testing.T) {
		code := `
function run_skill(inputs)
    error("boom")
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		require.True(t, IsKind(err, RuntimeError), "got %v", err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("fault in code", func(t *testing.T) {
		code := `
function run_skill(inputs)
    local x = nil
    return { value = x.field }
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, RuntimeError), "got %v", err)
	})

	t.Run("syntax error", func(t *testing.T) {
		outputs, err := e.Execute(context.Background(), `function run_skill(inputs`, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, RuntimeError), "got %v", err)
	})
}

func TestExecuteUnserializableOutput(t *testing.T) {
	e := newTestExecutor(t)

	t.Run("non-table return", func(t *testing.T) {
		code := `
function run_skill(inputs)
    return "just a string"
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, UnserializableOutput), "got %v", err)
	})

	t.Run("function in output", func(t *testing.T) {
		code := `
function run_skill(inputs)
    return { fn = function() end }
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, UnserializableOutput), "got %v", err)
	})

	t.Run("sequence return is not a mapping", func(t *testing.T) {
		code := `
function run_skill(inputs)
    return { 1, 2, 3 }
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, UnserializableOutput), "got %v", err)
	})

	t.Run("mixed keys", func(t *testing.T) {
		code := `
function run_skill(inputs)
    local t = { 1, 2 }
    t.name = "mixed"
    return t
end
`
		outputs, err := e.Execute(context.Background(), code, nil)
		assert.Nil(t, outputs)
		assert.True(t, IsKind(err, UnserializableOutput), "got %v", err)
	})
}

func TestExecuteJSONModule(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    local decoded = json.decode(inputs.payload)
    decoded.extra = true
    return { encoded = json.encode(decoded), name = decoded.name }
end
`
	outputs, err := e.Execute(context.Background(), code, map[string]any{
		"payload": `{"name":"widget","count":2}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "widget", outputs["name"])
	assert.Contains(t, outputs["encoded"], `"extra":true`)
}

func TestExecuteCSVModule(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    local rows = csv.parse(inputs.data)
    return {
        rows = #rows,
        first_header = rows[1][1],
        round_trip = csv.write(rows),
    }
end
`
	outputs, err := e.Execute(context.Background(), code, map[string]any{
		"data": "name,qty\nbolt,4\nnut,9\n",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), outputs["rows"])
	assert.Equal(t, "name", outputs["first_header"])
	assert.Equal(t, "name,qty\nbolt,4\nnut,9\n", outputs["round_trip"])
}

func TestExecutePatternModule(t *testing.T) {
	e := newTestExecutor(t)

	code := `
function run_skill(inputs)
    local count = 0
    for _ in string.gmatch(inputs.text, "%d+") do
        count = count + 1
    end
    return { numbers = count }
end
`
	outputs, err := e.Execute(context.Background(), code, map[string]any{
		"text": "order 12 shipped 345 units on day 6",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"numbers": float64(3)}, outputs)
}

func TestExecuteStatsModuleErrors(t *testing.T) {
	e := newTestExecutor(t)

	t.Run("empty sequence", func(t *testing.T) {
		code := `
function run_skill(inputs)
    return { m = stats.mean({}) }
end
`
		_, err := e.Execute(context.Background(), code, nil)
		assert.True(t, IsKind(err, RuntimeError), "got %v", err)
	})

	t.Run("non-numeric values", func(t *testing.T) {
		code := `
function run_skill(inputs)
    return { m = stats.mean({ "a", "b" }) }
end
`
		_, err := e.Execute(context.Background(), code, nil)
		assert.True(t, IsKind(err, RuntimeError), "got %v", err)
	})
}

func TestExecuteStateIsolation(t *testing.T) {
	e := newTestExecutor(t)

	// A global set by one execution must not leak into the next.
	setter := `
function run_skill(inputs)
    leaked = "value"
    return {}
end
`
	probe := `
function run_skill(inputs)
    return { leaked = leaked == nil }
end
`
	_, err := e.Execute(context.Background(), setter, nil)
	require.NoError(t, err)

	outputs, err := e.Execute(context.Background(), probe, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"leaked": true}, outputs)
}

func TestExecuteRemovedPrimitives(t *testing.T) {
	e := newTestExecutor(t)

	// Chunk loaders and protected calls are stripped from base; a script
	// cannot use pcall to swallow a capability violation.
	code := `
function run_skill(inputs)
    local ok = pcall(function() return io.open("x") end)
    return { ok = ok }
end
`
	outputs, err := e.Execute(context.Background(), code, nil)
	assert.Nil(t, outputs)
	assert.True(t, IsKind(err, RuntimeError), "got %v", err)
}

func TestNewExecutorOptions(t *testing.T) {
	t.Run("unknown module rejected", func(t *testing.T) {
		_, err := NewExecutor(WithAllowedModules("sockets"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sockets")
	})

	t.Run("non-positive timeout rejected", func(t *testing.T) {
		_, err := NewExecutor(WithTimeout(0))
		require.Error(t, err)
	})

	t.Run("defaults allow the full enumeration", func(t *testing.T) {
		e := newTestExecutor(t)
		assert.Len(t, e.allowed, len(AllModules()))
		assert.Equal(t, DefaultTimeout, e.timeout)
	})
}
