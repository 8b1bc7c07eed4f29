package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bmi(ctx context.Context, args map[string]any) (any, error) {
	weight, err := Float(args, "weight")
	if err != nil {
		return nil, err
	}
	height, err := Float(args, "height")
	if err != nil {
		return nil, err
	}
	m := height / 100
	return weight / (m * m), nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry().Register("calc_bmi", bmi)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []string{"calc_bmi"}, reg.List())

	result, err := reg.Run(context.Background(), "ignored", "calc_bmi", map[string]any{"weight": 65.0, "height": "175"})
	require.NoError(t, err)
	assert.InDelta(t, 21.2245, result.(float64), 1e-4)

	_, err = reg.Run(context.Background(), "", "calc_missing", nil)
	assert.Equal(t, errors.ResourceNotFound, errors.CodeOf(err))

	_, err = reg.Run(context.Background(), "", "calc_bmi", map[string]any{"weight": 65.0})
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))

	reg.Unregister("calc_bmi")
	assert.Equal(t, 0, reg.Count())
}

func TestRegistryRecoversPanics(t *testing.T) {
	reg := NewRegistry().Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})
	_, err := reg.Run(context.Background(), "", "boom", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ExecutionFailed, errors.CodeOf(err))
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]any{"n": 3, "s": "text", "b": "true", "f": float32(1.5), "bad": []int{1}}

	n, err := Float(args, "n")
	require.NoError(t, err)
	assert.Equal(t, 3.0, n)

	f, err := Float(args, "f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	_, err = Float(args, "s")
	assert.Error(t, err)
	_, err = Float(args, "bad")
	assert.Error(t, err)

	s, err := String(args, "s")
	require.NoError(t, err)
	assert.Equal(t, "text", s)
	_, err = String(args, "n")
	assert.Error(t, err)

	b, err := Bool(args, "b")
	require.NoError(t, err)
	assert.True(t, b)
	_, err = Bool(args, "missing")
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	primary := NewRegistry().Register("calc_bmi", bmi)
	secondaryCalls := 0
	secondary := core.SandboxFunc(func(ctx context.Context, code, entry string, args map[string]any) (any, error) {
		secondaryCalls++
		return "from secondary", nil
	})
	sb := Fallback(primary, secondary)

	_, err := sb.Run(context.Background(), "", "calc_bmi", map[string]any{"weight": 80.0, "height": 180.0})
	require.NoError(t, err)
	assert.Equal(t, 0, secondaryCalls)

	result, err := sb.Run(context.Background(), "def f(): ...", "f", nil)
	require.NoError(t, err)
	assert.Equal(t, "from secondary", result)

	_, err = sb.Run(context.Background(), "", "calc_bmi", map[string]any{})
	assert.Error(t, err)
	assert.Equal(t, 1, secondaryCalls, "argument errors do not fall through")
}

func helperProcess() *Process {
	return &Process{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env:     append(os.Environ(), "GO_WANT_HELPER_PROCESS=1"),
		Timeout: 10 * time.Second,
	}
}

func TestProcess(t *testing.T) {
	p := helperProcess()
	ctx := context.Background()

	result, err := p.Run(ctx, "def add(a, b): return a + b", "add", map[string]any{"a": 2, "b": 3.5})
	require.NoError(t, err)
	assert.Equal(t, 5.5, result)

	tests := []struct {
		entry string
		want  string
	}{
		{"fail", "division by zero"},
		{"crash", "sandbox process failed"},
		{"garbage", "failed to decode sandbox response"},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			_, err := p.Run(ctx, "", tt.entry, nil)
			require.Error(t, err)
			assert.Equal(t, errors.ExecutionFailed, errors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProcessTimeout(t *testing.T) {
	p := helperProcess()
	p.Timeout = 200 * time.Millisecond

	_, err := p.Run(context.Background(), "", "hang", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ExecutionFailed, errors.CodeOf(err))
}

// TestHelperProcess is not a real test; it is the interpreter TestProcess
// starts.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	out := json.NewEncoder(os.Stdout)
	switch req.Entry {
	case "add":
		a, _ := Float(req.Args, "a")
		b, _ := Float(req.Args, "b")
		_ = out.Encode(Response{Result: a + b})
	case "fail":
		_ = out.Encode(Response{Error: "ZeroDivisionError: division by zero"})
	case "crash":
		fmt.Fprintln(os.Stderr, "Traceback (most recent call last)")
		os.Exit(3)
	case "garbage":
		fmt.Fprint(os.Stdout, "not json")
	case "hang":
		time.Sleep(time.Minute)
	}
}

func TestBuiltins(t *testing.T) {
	reg := Builtins()
	ctx := context.Background()

	tests := []struct {
		entry string
		args  map[string]any
		want  any
	}{
		{"calc_bmi", map[string]any{"weight": 65.0, "height": 175.0}, 21.2245},
		{"convert_height", map[string]any{"value": 1.75, "from_unit": "m", "to_unit": "cm"}, 175.0},
		{"convert_height", map[string]any{"value": 72.0, "from_unit": "in", "to_unit": "ft"}, 6.0},
		{"convert_weight", map[string]any{"value": 100.0, "from_unit": "lb", "to_unit": "kg"}, 45.3592},
		{"calc_crcl", map[string]any{"age": 60.0, "weight": 72.0, "creatinine": 1.0}, 80.0},
		{"calc_crcl", map[string]any{"age": 60.0, "weight": 72.0, "creatinine": 1.0, "sex": "female"}, 68.0},
		{"calc_cha2ds2_vasc", map[string]any{"age": 70.0, "sex": "F", "stroke": true, "chf": false}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := reg.Run(ctx, "", tt.entry, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := reg.Run(ctx, "", "convert_height", map[string]any{"value": 1.0, "from_unit": "furlong", "to_unit": "cm"})
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
	_, err = reg.Run(ctx, "", "calc_bmi", map[string]any{"weight": 65.0, "height": 0.0})
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}
