package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/sbatchman/internal/common/logging"
)

func TestCELEvaluator_Evaluate(t *testing.T) {
	tests := map[string]struct {
		header   string
		body     string
		expected string
	}{
		"integer arithmetic": {body: "2 * 3 + 1", expected: "7"},
		"string concat":      {body: "'run_' + 'a'", expected: "run_a"},
		"double":             {body: "10.0 / 4.0", expected: "2.5"},
		"whole double":       {body: "2.0 * 2.0", expected: "4"},
		"bool":               {body: "1 < 2", expected: "true"},
		"conditional":        {body: "3 > 2 ? 'big' : 'small'", expected: "big"},
		"string conversion":  {body: "string(2 * 21)", expected: "42"},
		"header definitions": {header: "base = 10\nscale = base * 2", body: "scale + 1", expected: "21"},
		"header comments": {
			header:   "# helpers\n\nprefix = 'exp'\n",
			body:     "prefix + '_' + string(3)",
			expected: "exp_3",
		},
		"header redefinition": {header: "x = 1\nx = x + 1", body: "x", expected: "2"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := NewCELEvaluator().Evaluate(tc.header, tc.body)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestCELEvaluator_Errors(t *testing.T) {
	e := NewCELEvaluator()

	_, err := e.Evaluate("", "1 +")
	assert.Error(t, err)

	_, err = e.Evaluate("", "undefined_name + 1")
	assert.Error(t, err)

	_, err = e.Evaluate("not a definition", "1")
	assert.Error(t, err)

	_, err = e.Evaluate("", "1 / 0")
	assert.Error(t, err)
}

func TestCELEvaluator_CachesPrograms(t *testing.T) {
	e := NewCELEvaluator()
	for i := 0; i < 3; i++ {
		result, err := e.Evaluate("", "1 + 1")
		require.NoError(t, err)
		assert.Equal(t, "2", result)
	}
	assert.Equal(t, 1, e.programs.Len())
}

func TestSpans_Rewrite(t *testing.T) {
	tests := map[string]struct {
		header   string
		text     string
		expected string
	}{
		"no expression":       {text: "echo hello", expected: "echo hello"},
		"closed span":         {text: "echo @cel 1 + 2 @cel done", expected: "echo 3 done"},
		"span to end of text": {text: "echo @cel 2 * 5", expected: "echo 10"},
		"two spans":           {text: "@cel 1 + 1 @cel-@cel 2 + 2 @cel", expected: "2-4"},
		"multiline body":      {text: "x=@cel 1 +\n 2 @cel", expected: "x=3"},
		"with header":         {header: "n = 4", text: "--threads @cel n * 2 @cel", expected: "--threads 8"},
		"failing span kept":   {text: "a @cel 1 + @cel b", expected: "a @cel 1 + @cel b"},
		"token without space": {text: "mail@celdomain", expected: "mail@celdomain"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			spans := NewSpans(DefaultToken, tc.header, NewCELEvaluator(), logging.NullLogger.WithField("test", name))
			assert.Equal(t, tc.expected, spans.Rewrite(tc.text))
		})
	}
}

func TestSpans_NilEvaluatorLeavesTextUnchanged(t *testing.T) {
	spans := NewSpans("", "", nil, nil)
	assert.Equal(t, "@cel 1 + 1 @cel", spans.Rewrite("@cel 1 + 1 @cel"))
	assert.Equal(t, DefaultToken, spans.Token())
}
