package transpiler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/caffeineduck/dotstar/engine"
	"go.starlark.net/resolve"
	"go.starlark.net/syntax"
	"gopkg.in/yaml.v3"
)

// DumpAST parses source and renders its syntax tree as indented JSON.
func (t *Transpiler) DumpAST(source []byte, path string) ([]byte, error) {
	f, err := t.Parse(source, path)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(nodeTree(f), "", "    ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Fields that carry resolver state or options rather than syntax.
var skippedFields = map[string]bool{
	"Binding": true,
	"Module":  true,
	"Options": true,
}

func nodeTree(n syntax.Node) map[string]any {
	v := reflect.ValueOf(n).Elem()
	typ := v.Type()
	start, _ := n.Span()

	out := map[string]any{
		"type": typ.Name(),
		"line": int(start.Line),
		"col":  int(start.Col),
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous || skippedFields[field.Name] {
			continue
		}
		if value, ok := fieldTree(v.Field(i)); ok {
			out[strings.ToLower(field.Name)] = value
		}
	}
	return out
}

func fieldTree(fv reflect.Value) (any, bool) {
	switch fv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if fv.IsNil() {
			return nil, true
		}
	}

	switch x := fv.Interface().(type) {
	case syntax.Position:
		return nil, false
	case syntax.Token:
		return x.String(), true
	case syntax.Node:
		return nodeTree(x), true
	}

	switch fv.Kind() {
	case reflect.Interface:
		return fieldTree(fv.Elem())
	case reflect.Slice:
		list := make([]any, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			if item, ok := fieldTree(fv.Index(i)); ok {
				list = append(list, item)
			}
		}
		return list, true
	case reflect.String, reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
		return fv.Interface(), true
	default:
		return fmt.Sprint(fv.Interface()), true
	}
}

type unitListing struct {
	Path    string   `yaml:"path"`
	Mode    string   `yaml:"mode"`
	Result  bool     `yaml:"result"`
	Globals []string `yaml:"globals"`
	Free    []string `yaml:"free"`
	Loads   []string `yaml:"loads,omitempty"`
	Program string   `yaml:"program"`
}

// Describe renders the generated unit as YAML: its bindings, the names it
// expects from the environment and its compiled program.
func (t *Transpiler) Describe(unit *engine.Unit) ([]byte, error) {
	listing := unitListing{
		Path:   unit.Path,
		Mode:   unit.Mode.String(),
		Result: unit.HasResult,
		Free:   unit.Free,
	}

	if module, ok := unit.File.Module.(*resolve.Module); ok {
		for _, b := range module.Globals {
			if b.First != nil {
				listing.Globals = append(listing.Globals, b.First.Name)
			}
		}
	}
	for i := 0; i < unit.Program.NumLoads(); i++ {
		name, _ := unit.Program.Load(i)
		listing.Loads = append(listing.Loads, name)
	}

	var buf bytes.Buffer
	if err := unit.Program.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode program: %w", err)
	}
	listing.Program = base64.StdEncoding.EncodeToString(buf.Bytes())

	return yaml.Marshal(listing)
}
