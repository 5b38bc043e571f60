package templating

import (
	"strings"
	"testing"

	"github.com/sanity-io/litter"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/sbatchman/internal/common/logging"
	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

func str(s string) variables.Scalar { return variables.NewString(s) }

func scalarVar(name string, s variables.Scalar) variables.Variable {
	return variables.Variable{Name: name, Contents: variables.ScalarContents(s)}
}

func listVar(name string, items ...variables.Scalar) variables.Variable {
	return variables.Variable{Name: name, Contents: variables.ListContents(items...)}
}

func testEngine() *Engine {
	logger := logging.NullLogger.WithField("test", true)
	return NewEngine(expression.NewSpans(expression.DefaultToken, "", expression.NewCELEvaluator(), logger), logger)
}

func commands(jobs []MaterializedJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Command
	}
	return out
}

func TestBuildGraph(t *testing.T) {
	vars := variables.NewSet(
		scalarVar("X", str("${Y}/out")),
		listVar("Y", str("${Z}_a"), str("b")),
		scalarVar("Z", variables.NewInt(1)),
		scalarVar("W", str("${X}")),
	)
	graph := BuildGraph(vars, "run ${X} ${U}")

	assert.Equal(t, []string{"U", "X", "Y", "Z"}, graph.Names())
	assert.Equal(t, []string{"Y"}, graph.Dependencies("X"))
	assert.Equal(t, []string{"Z"}, graph.Dependencies("Y"))
	assert.True(t, graph.HasDependencies("X"))
	assert.True(t, graph.HasDependencies("Y"))
	assert.False(t, graph.HasDependencies("Z"))
	assert.False(t, graph.HasDependencies("U"))
	assert.False(t, graph.Contains("W"))
	assert.Equal(t, map[string]bool{"X": true, "Y": true, "Z": true, "U": true}, graph.Used("run ${X} ${U}"))
}

func TestBuildGraph_MapsContributeEveryEntry(t *testing.T) {
	def := variables.ScalarVar(str("${D}"))
	vars := variables.NewSet(
		variables.Variable{Name: "CM", Contents: variables.ClusterMapContents(variables.ClusterMap{
			Default:    &def,
			PerCluster: map[string]variables.BasicVar{"a": variables.ScalarVar(str("${P}"))},
		})},
		variables.Variable{Name: "M", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
			"k": variables.ListVar(str("${L}")),
		})},
	)
	graph := BuildGraph(vars, "${CM} ${M}[k]")
	assert.ElementsMatch(t, []string{"D", "P"}, graph.Dependencies("CM"))
	assert.Equal(t, []string{"L"}, graph.Dependencies("M"))
}

func TestBuildGraph_TerminatesOnCycles(t *testing.T) {
	vars := variables.NewSet(
		scalarVar("A", str("${B}")),
		scalarVar("B", str("${A}")),
		scalarVar("C", str("x${C}")),
	)
	graph := BuildGraph(vars, "${A} ${C}")
	assert.Equal(t, []string{"B"}, graph.Dependencies("A"))
	assert.Equal(t, []string{"A"}, graph.Dependencies("B"))
	assert.Equal(t, []string{"C"}, graph.Dependencies("C"))
}

func TestResolveForCluster(t *testing.T) {
	def := variables.ScalarVar(str("default"))
	vars := variables.NewSet(
		scalarVar("S", variables.NewFloat(1.0)),
		listVar("L", variables.NewInt(1), variables.NewInt(2)),
		listVar("EMPTY"),
		variables.Variable{Name: "M", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
			"key1": variables.ScalarVar(str("value1")),
		})},
		variables.Variable{Name: "CM", Contents: variables.ClusterMapContents(variables.ClusterMap{
			Default:    &def,
			PerCluster: map[string]variables.BasicVar{"clusterA": variables.ScalarVar(str("value_a"))},
		})},
		variables.Variable{Name: "NODEFAULT", Contents: variables.ClusterMapContents(variables.ClusterMap{
			PerCluster: map[string]variables.BasicVar{"clusterA": variables.ListVar(str("x"), str("y"))},
		})},
	)

	tests := map[string]struct {
		cluster  string
		expected map[string][]string
	}{
		"cluster with entries": {
			cluster: "clusterA",
			expected: map[string][]string{
				"S": {"1"}, "L": {"1", "2"}, "CM": {"value_a"}, "NODEFAULT": {"x", "y"},
			},
		},
		"cluster falls back to default": {
			cluster:  "clusterC",
			expected: map[string][]string{"S": {"1"}, "L": {"1", "2"}, "CM": {"default"}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ResolveForCluster(tc.cluster, vars))
		})
	}
}

func TestCartesian(t *testing.T) {
	tests := map[string]struct {
		resolved map[string][]string
		vars     variables.Set
		text     string
		expected []Binding
	}{
		"no participants": {
			resolved: map[string][]string{"A": {"1", "2"}},
			text:     "echo hello",
			expected: []Binding{{}},
		},
		"unused variables ignored": {
			resolved: map[string][]string{"A": {"1", "2"}, "B": {"x"}},
			text:     "${B}",
			expected: []Binding{{"B": "x"}},
		},
		"first name varies slowest": {
			resolved: map[string][]string{"B": {"1", "2"}, "A": {"a1", "a2"}},
			text:     "${A}-${B}",
			expected: []Binding{
				{"A": "a1", "B": "1"}, {"A": "a1", "B": "2"},
				{"A": "a2", "B": "1"}, {"A": "a2", "B": "2"},
			},
		},
		"dependent variables excluded": {
			resolved: map[string][]string{"BASE": {"hello", "bye"}, "DERIVED": {"${BASE}_world"}},
			vars: variables.NewSet(
				scalarVar("BASE", str("hello")),
				scalarVar("DERIVED", str("${BASE}_world")),
			),
			text:     "${DERIVED}",
			expected: []Binding{{"BASE": "hello"}, {"BASE": "bye"}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			graph := BuildGraph(tc.vars, tc.text)
			bindings := Cartesian(tc.resolved, graph, tc.text)
			assert.Equal(t, tc.expected, bindings, litter.Sdump(graph.Names(), bindings))
		})
	}
}

func TestMaterialize(t *testing.T) {
	tests := map[string]struct {
		tpl      JobTemplate
		cluster  string
		vars     variables.Set
		commands []string
		bindings []map[string]string
	}{
		"cartesian cardinality": {
			tpl: JobTemplate{Command: "${A}-${B}"},
			vars: variables.NewSet(
				listVar("A", str("a1"), str("a2")),
				listVar("B", variables.NewInt(1), variables.NewInt(2)),
			),
			commands: []string{"a1-1", "a1-2", "a2-1", "a2-2"},
		},
		"no variables": {
			tpl:      JobTemplate{Command: "echo 'Hello World'"},
			vars:     variables.NewSet(listVar("UNUSED", str("1"), str("2"))),
			commands: []string{"echo 'Hello World'"},
			bindings: []map[string]string{{}},
		},
		"dependent variable": {
			tpl: JobTemplate{Command: "${DERIVED}"},
			vars: variables.NewSet(
				scalarVar("BASE", str("hello")),
				scalarVar("DERIVED", str("${BASE}_world")),
			),
			commands: []string{"hello_world"},
			bindings: []map[string]string{{"BASE": "hello"}},
		},
		"dependent chain over a list": {
			tpl: JobTemplate{Command: "run ${OUT}"},
			vars: variables.NewSet(
				listVar("N", variables.NewInt(1), variables.NewInt(2)),
				scalarVar("DIR", str("res_${N}")),
				scalarVar("OUT", str("${DIR}/out.txt")),
			),
			commands: []string{"run res_1/out.txt", "run res_2/out.txt"},
		},
		"map lookup with variable key": {
			tpl: JobTemplate{Command: "${MAP}[${KEY}]"},
			vars: variables.NewSet(
				variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"key1": variables.ScalarVar(str("value1")),
				})},
				scalarVar("KEY", str("key1")),
			),
			commands: []string{"value1"},
		},
		"map lookup with literal key": {
			tpl: JobTemplate{Command: "${MAP}[key1]"},
			vars: variables.NewSet(
				variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"key1": variables.ScalarVar(str("value1")),
				})},
			),
			commands: []string{"value1"},
		},
		"map lookup per list element": {
			tpl: JobTemplate{Command: "--lr ${LR}[${MODEL}]"},
			vars: variables.NewSet(
				variables.Variable{Name: "LR", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"small": variables.ScalarVar(variables.NewFloat(0.01)),
					"large": variables.ScalarVar(variables.NewFloat(0.001)),
				})},
				listVar("MODEL", str("small"), str("large")),
			),
			commands: []string{"--lr 0.01", "--lr 0.001"},
		},
		"map entry referencing an enumerated variable": {
			tpl: JobTemplate{Command: "${MAP}[k]"},
			vars: variables.NewSet(
				variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"k": variables.ScalarVar(str("${B}_x")),
				})},
				listVar("B", variables.NewInt(1), variables.NewInt(2)),
			),
			commands: []string{"1_x", "2_x"},
			bindings: []map[string]string{{"B": "1"}, {"B": "2"}},
		},
		"map entry with nested lookup": {
			tpl: JobTemplate{Command: "${OUTER}[a]"},
			vars: variables.NewSet(
				variables.Variable{Name: "OUTER", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"a": variables.ScalarVar(str("${INNER}[${K}]")),
				})},
				variables.Variable{Name: "INNER", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"x": variables.ScalarVar(str("inner_x")),
				})},
				scalarVar("K", str("x")),
			),
			commands: []string{"inner_x"},
		},
		"list-valued map entry kept": {
			tpl: JobTemplate{Command: "${MAP}[k]"},
			vars: variables.NewSet(
				variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
					"k": variables.ListVar(str("a"), str("b")),
				})},
			),
			commands: []string{"${MAP}[k]"},
		},
		"missing map key kept": {
			tpl: JobTemplate{Command: "${MAP}[nokey]"},
			vars: variables.NewSet(
				variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{})},
			),
			commands: []string{"${MAP}[nokey]"},
		},
		"unknown simple reference kept": {
			tpl:      JobTemplate{Command: "echo ${MISSING} $HOME"},
			vars:     variables.NewSet(),
			commands: []string{"echo ${MISSING} $HOME"},
		},
		"cluster map for cluster": {
			tpl:     JobTemplate{Command: "--partition ${PART}"},
			cluster: "clusterA",
			vars: variables.NewSet(variables.Variable{Name: "PART", Contents: variables.ClusterMapContents(variables.ClusterMap{
				PerCluster: map[string]variables.BasicVar{"clusterA": variables.ListVar(str("p1"), str("p2"))},
			})}),
			commands: []string{"--partition p1", "--partition p2"},
		},
		"expression span": {
			tpl:      JobTemplate{Command: "echo @cel ${N} * 2 @cel"},
			vars:     variables.NewSet(listVar("N", variables.NewInt(1), variables.NewInt(2))),
			commands: []string{"echo 2", "echo 4"},
		},
		"dynamic expression variable": {
			tpl: JobTemplate{Command: "--threads ${T}"},
			vars: variables.NewSet(
				scalarVar("N", variables.NewInt(4)),
				scalarVar("T", variables.NewDynamicExpr("@cel ${N} + 1 @cel")),
			),
			commands: []string{"--threads 5"},
		},
		"failing expression left in place": {
			tpl:      JobTemplate{Command: "a @cel 1 + @cel b"},
			vars:     variables.NewSet(),
			commands: []string{"a @cel 1 + @cel b"},
		},
		"preprocess contributes variables": {
			tpl: JobTemplate{Command: "run", Preprocess: "mkdir ${D}"},
			vars: variables.NewSet(
				listVar("D", str("x"), str("y")),
			),
			commands: []string{"run", "run"},
			bindings: []map[string]string{{"D": "x"}, {"D": "y"}},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			jobs, err := testEngine().Materialize(tc.tpl, tc.cluster, tc.vars)
			require.NoError(t, err)
			assert.Equal(t, tc.commands, commands(jobs), litter.Sdump(jobs))
			if tc.bindings != nil {
				require.Len(t, jobs, len(tc.bindings))
				for i, b := range tc.bindings {
					assert.Equal(t, b, jobs[i].Variables)
				}
			}
		})
	}
}

func TestMaterialize_ExpandsNameAndStages(t *testing.T) {
	tpl := JobTemplate{
		Name:        "train_${MODEL}",
		Config:      "gpu",
		Command:     "python train.py --model ${MODEL}",
		Preprocess:  "mkdir -p out/${MODEL}",
		Postprocess: "echo done ${MODEL}",
	}
	vars := variables.NewSet(listVar("MODEL", str("a"), str("b")))
	jobs, err := testEngine().Materialize(tpl, "local", vars)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, MaterializedJob{
		Name:        "train_b",
		Config:      "gpu",
		Command:     "python train.py --model b",
		Preprocess:  "mkdir -p out/b",
		Postprocess: "echo done b",
		Variables:   map[string]string{"MODEL": "b"},
	}, jobs[1])
}

func TestMaterialize_NameAndConfigAreEnumerated(t *testing.T) {
	tpl := JobTemplate{Name: "j_${CFG}", Config: "${CFG}", Command: "run"}
	vars := variables.NewSet(listVar("CFG", str("cpu"), str("gpu")))
	jobs, err := testEngine().Materialize(tpl, "local", vars)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j_cpu", jobs[0].Name)
	assert.Equal(t, "cpu", jobs[0].Config)
	assert.Equal(t, "j_gpu", jobs[1].Name)
	assert.Equal(t, "gpu", jobs[1].Config)
}

func TestMaterialize_UnknownLookupVariableIsAnError(t *testing.T) {
	mapVar := variables.Variable{Name: "MAP", Contents: variables.StandardMapContents(map[string]variables.BasicVar{
		"x": variables.ScalarVar(str("value")),
	})}
	tests := map[string]struct {
		command  string
		vars     variables.Set
		expected string
	}{
		"undeclared map": {
			command:  "${NOPE}[x]",
			vars:     variables.NewSet(),
			expected: "NOPE",
		},
		"undeclared key variable": {
			command:  "${MAP}[${NOPE}]",
			vars:     variables.NewSet(mapVar),
			expected: "NOPE",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := testEngine().Materialize(JobTemplate{Name: "j", Command: tc.command}, "local", tc.vars)
			var unknown *ErrUnknownVariable
			require.ErrorAs(t, err, &unknown)
			assert.Equal(t, tc.expected, unknown.Name)
		})
	}
}

func TestSubstitute_CycleIsCapped(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	engine := NewEngine(nil, log.NewEntry(logger))
	vars := variables.NewSet(scalarVar("A", str("x${A}")))
	graph := BuildGraph(vars, "${A}")

	result, err := engine.Substitute("${A}", Binding{}, Scope{Vars: vars, Graph: graph})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result, strings.Repeat("x", MaxResolutionIterations)))
	assert.Contains(t, result, "${A}")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}

func TestSubstitute_MutualReferenceTerminates(t *testing.T) {
	vars := variables.NewSet(scalarVar("A", str("${B}")), scalarVar("B", str("${A}")))
	graph := BuildGraph(vars, "${A}")
	result, err := NewEngine(nil, logging.NullLogger.WithField("test", true)).Substitute("${A}", Binding{}, Scope{Vars: vars, Graph: graph})
	require.NoError(t, err)
	assert.Contains(t, result, "${")
}

func TestSubstituteSimple_Idempotent(t *testing.T) {
	values := Binding{"A": "hello", "B": "world"}
	once := SubstituteSimple("${A}_${B} ${C}", values)
	assert.Equal(t, "hello_world ${C}", once)
	assert.Equal(t, once, SubstituteSimple(once, values))
	assert.Equal(t, "hello_world", SubstituteSimple("hello_world", values))

	engine := NewEngine(nil, nil)
	resolved, err := engine.Substitute("hello_world", values, Scope{Vars: variables.NewSet()})
	require.NoError(t, err)
	assert.Equal(t, "hello_world", resolved)
}

func TestExpandAll(t *testing.T) {
	vars := variables.NewSet(listVar("SIZE", variables.NewInt(1), variables.NewInt(2)), scalarVar("UNIT", str("G")))
	results, err := testEngine().ExpandAll(map[string]string{
		"name": "cfg_${SIZE}",
		"mem":  "${SIZE}${UNIT}",
		"time": "00:10:00",
	}, "local", vars)
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"name": "cfg_1", "mem": "1G", "time": "00:10:00"},
		{"name": "cfg_2", "mem": "2G", "time": "00:10:00"},
	}, results)
}
