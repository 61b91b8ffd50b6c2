package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"tomohub/internal/apperrors"
)

const stagesJSON = `[
  {"method": "standard_tomo", "module_path": "httomo.data.hdf.loaders",
   "parameters": {"data_path": "/entry1/tomo_entry/data/data", "preview": null}},
  {"method": "find_center_vo", "module_path": "httomolibgpu.recon.rotation",
   "parameters": {"ind": "mid", "center": 5}, "id": "centering",
   "side_outputs": {"cor": "centre_of_rotation"}},
  {"method": "recon", "module_path": "tomopy.recon.algorithm",
   "parameters": {"center": {"start": 10, "stop": 20, "step": 2}, "algorithm": "gridrec", "label": "true"}},
  {"method": "recon", "module_path": "tomopy.recon.algorithm",
   "parameters": {"center": {"start": 1, "stop": 2, "step": 1}}}
]`

// parsedStage is the decoded form of one emitted stage, for assertions.
type parsedStage struct {
	method string
	params map[string]*yaml.Node
	keys   []string
}

func parseBuilt(t *testing.T, out []byte) []parsedStage {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, out)
	}
	var stages []parsedStage
	for _, item := range doc.Content[0].Content {
		ps := parsedStage{params: make(map[string]*yaml.Node)}
		for i := 0; i+1 < len(item.Content); i += 2 {
			key, val := item.Content[i].Value, item.Content[i+1]
			ps.keys = append(ps.keys, key)
			switch key {
			case "method":
				ps.method = val.Value
			case "parameters":
				for j := 0; j+1 < len(val.Content); j += 2 {
					ps.params[val.Content[j].Value] = val.Content[j+1]
				}
			}
		}
		stages = append(stages, ps)
	}
	return stages
}

func TestBuild_RangeSweepTagsOnlyFirstMatch(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(stagesJSON))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}

	out, err := Build(stages, &Sweep{MethodID: "recon", ParamName: "center", Kind: "range"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	text := string(out)
	if n := strings.Count(text, TagSweepRange); n != 1 {
		t.Fatalf("found %d sweep tags, want 1:\n%s", n, text)
	}
	if !strings.Contains(text, "center: !SweepRange") {
		t.Errorf("expected tagged center assignment:\n%s", text)
	}

	parsed := parseBuilt(t, out)
	if got := parsed[2].params["center"].Tag; got != TagSweepRange {
		t.Errorf("first recon center tag = %q, want %q", got, TagSweepRange)
	}
	if got := parsed[3].params["center"].Tag; got == TagSweepRange {
		t.Error("second recon stage should not be tagged")
	}
	if got := parsed[1].params["center"].ShortTag(); got != "!!int" {
		t.Errorf("find_center_vo center tag = %q, want !!int", got)
	}
}

func TestBuild_StageIndexPinsDuplicate(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(stagesJSON))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}
	idx := 3

	out, err := Build(stages, &Sweep{MethodID: "recon", ParamName: "center", Kind: "list", StageIndex: &idx})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	parsed := parseBuilt(t, out)
	if parsed[2].params["center"].Tag == TagSweep {
		t.Error("first recon stage should not be tagged")
	}
	if got := parsed[3].params["center"].Tag; got != TagSweep {
		t.Errorf("pinned stage center tag = %q, want %q", got, TagSweep)
	}
}

func TestBuild_PreservesOrderAndValues(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(stagesJSON))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}

	out, err := Build(stages, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if strings.Contains(string(out), "!Sweep") {
		t.Errorf("no sweep requested, got tags:\n%s", out)
	}

	parsed := parseBuilt(t, out)
	if diff := cmp.Diff([]string{"method", "module_path", "parameters", "id", "side_outputs"}, parsed[1].keys); diff != "" {
		t.Errorf("stage keys mismatch (-want +got):\n%s", diff)
	}
	if got := parsed[2].params["label"]; got.ShortTag() != "!!str" || got.Value != "true" {
		t.Errorf("string that looks like a bool must stay a string, got %s %q", got.ShortTag(), got.Value)
	}
	if got := parsed[0].params["preview"]; got.ShortTag() != "!!null" {
		t.Errorf("preview tag = %q, want !!null", got.ShortTag())
	}

	// Building must not mutate the caller's stages.
	if _, err := Build(stages, &Sweep{MethodID: "recon", ParamName: "center", Kind: "range"}); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if stages[2].Param("center").Tag == TagSweepRange {
		t.Error("Build tagged the caller's parameter node")
	}
}

func TestBuild_SweepErrors(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(stagesJSON))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}
	badIndex := 0
	outOfRange := 9

	tests := []struct {
		name  string
		sweep Sweep
	}{
		{"unknown method", Sweep{MethodID: "FBP", ParamName: "center", Kind: "range"}},
		{"unknown parameter", Sweep{MethodID: "recon", ParamName: "angles", Kind: "range"}},
		{"missing kind", Sweep{MethodID: "recon", ParamName: "center"}},
		{"missing param name", Sweep{MethodID: "recon", Kind: "range"}},
		{"index names other method", Sweep{MethodID: "recon", ParamName: "center", Kind: "range", StageIndex: &badIndex}},
		{"index out of range", Sweep{MethodID: "recon", ParamName: "center", Kind: "range", StageIndex: &outOfRange}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(stages, &tt.sweep)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeStages_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `[{"method": "x"`},
		{"not a list", `{"method": "x"}`},
		{"stage not object", `["x"]`},
		{"missing method", `[{"module_path": "m"}]`},
		{"parameters not object", `[{"method": "x", "parameters": [1, 2]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeStages([]byte(tt.input))
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCentrePipeline(t *testing.T) {
	t.Parallel()
	loader, err := NewStage("standard_tomo", "httomo.data.hdf.loaders",
		Param{Name: "data_path", Value: "/entry1/tomo_entry/data/data"},
	)
	if err != nil {
		t.Fatalf("NewStage() error: %v", err)
	}

	stages, err := CentrePipeline(loader, "gridrec", SweepSpec{Start: 10, Stop: 20, Step: 2})
	if err != nil {
		t.Fatalf("CentrePipeline() error: %v", err)
	}
	out, err := Build(stages, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	parsed := parseBuilt(t, out)
	var methods []string
	for _, p := range parsed {
		methods = append(methods, p.method)
	}
	if diff := cmp.Diff([]string{"standard_tomo", "normalize", "minus_log", "recon"}, methods); diff != "" {
		t.Errorf("methods mismatch (-want +got):\n%s", diff)
	}

	center := parsed[3].params["center"]
	if center.Tag != TagSweepRange {
		t.Fatalf("center tag = %q, want %q", center.Tag, TagSweepRange)
	}
	var spec SweepSpec
	if err := center.Decode(&spec); err != nil {
		t.Fatalf("decode center: %v", err)
	}
	if diff := cmp.Diff(SweepSpec{Start: 10, Stop: 20, Step: 2}, spec); diff != "" {
		t.Errorf("center mismatch (-want +got):\n%s", diff)
	}
	if got := parsed[3].params["algorithm"].Value; got != "gridrec" {
		t.Errorf("algorithm = %q", got)
	}
	if len(parsed[2].params) != 0 {
		t.Errorf("minus_log should have no parameters, got %d", len(parsed[2].params))
	}
}

func TestCentrePipeline_InvalidRange(t *testing.T) {
	t.Parallel()
	_, err := CentrePipeline(Stage{Method: "standard_tomo"}, "gridrec", SweepSpec{Start: 10, Stop: 20})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDecodeStage(t *testing.T) {
	t.Parallel()
	loader, err := DecodeStage([]byte(`{"method": "standard_tomo", "module_path": "httomo.data.hdf.loaders",
		"parameters": {"data_path": "entry1/tomo_entry/data/data", "preview": null}}`))
	if err != nil {
		t.Fatalf("DecodeStage() error: %v", err)
	}
	if loader.Method != "standard_tomo" || loader.ModulePath != "httomo.data.hdf.loaders" {
		t.Errorf("unexpected stage identity %q %q", loader.Method, loader.ModulePath)
	}
	if got := loader.Param("data_path"); got == nil || got.Value != "entry1/tomo_entry/data/data" {
		t.Errorf("data_path = %v", got)
	}
	if got := loader.Param("preview"); got == nil || !isNull(got) {
		t.Errorf("preview should be null, got %v", got)
	}

	for _, input := range []string{`[]`, `{"module_path": "m"}`, `{`} {
		_, err := DecodeStage([]byte(input))
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) || appErr.Field != "loader_context" {
			t.Errorf("DecodeStage(%s) error = %v, want loader_context validation error", input, err)
		}
	}
}

func TestBuild_SweepLeavesStagesReusable(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(stagesJSON))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}

	swept, err := Build(stages, &Sweep{MethodID: "recon", ParamName: "center", Kind: "range"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	sweptText := string(swept)

	plain, err := Build(stages, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if strings.Contains(string(plain), "!Sweep") {
		t.Errorf("second build without sweep still tagged:\n%s", plain)
	}
	if string(swept) != sweptText {
		t.Error("first build output changed after second build")
	}
	if n := strings.Count(sweptText, TagSweepRange); n != 1 {
		t.Errorf("found %d sweep tags in first build, want 1", n)
	}
}

func TestDecodeStages_KeepsYAML11AmbiguousStringsQuoted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value string
		want  string // emitted line
	}{
		{"yes", "v: 'yes'"},
		{"no", "v: 'no'"},
		{"on", "v: 'on'"},
		{"off", "v: 'off'"},
		{"Yes", "v: 'Yes'"},
		{"OFF", "v: 'OFF'"},
		{"y", "v: 'y'"},
		{"1:20", "v: '1:20'"},
		{"190:20:30.15", "v: '190:20:30.15'"},
		{"0x1F", "v: '0x1F'"},
		{"1_000", "v: '1_000'"},
		{"017", "v: '017'"},
		{"10", "v: '10'"},
		{".inf", "v: '.inf'"},
		{"~", "v: '~'"},
		{"null", "v: 'null'"},
		{"<<", "v: '<<'"},
		{"2024-01-02", "v: '2024-01-02'"},
		{"", "v: ''"},
		{"gridrec", "v: gridrec"},
		{"mid", "v: mid"},
		{"yesterday", "v: yesterday"},
		{"/entry1/tomo_entry/data/data", "v: /entry1/tomo_entry/data/data"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			input := `[{"method": "m", "module_path": "p", "parameters": {"v": "` + tt.value + `"}}]`
			stages, err := DecodeStages([]byte(input))
			if err != nil {
				t.Fatalf("DecodeStages() error: %v", err)
			}
			out, err := Build(stages, nil)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if !strings.Contains(string(out), tt.want+"\n") {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
			if got := parseBuilt(t, out)[0].params["v"]; got.ShortTag() != "!!str" || got.Value != tt.value {
				t.Errorf("round trip = %s %q, want !!str %q", got.ShortTag(), got.Value, tt.value)
			}
		})
	}
}

func TestDecodeStages_NonStringsStayPlain(t *testing.T) {
	t.Parallel()
	stages, err := DecodeStages([]byte(`[{"method": "m", "parameters": {"n": 10, "b": true, "f": 1.5, "z": null}}]`))
	if err != nil {
		t.Fatalf("DecodeStages() error: %v", err)
	}
	out, err := Build(stages, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	for _, want := range []string{"n: 10\n", "b: true\n", "f: 1.5\n", "z: null\n"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
