package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// FromHCL parses HCL native syntax into a Config.
//
// Attributes become keys. A block becomes a nested map under its type; each
// block label adds one more level of nesting:
//
//	workers = 8
//	history "sqlite" {
//	  path = "runs.db"
//	}
//
// yields {"workers": 8, "history": {"sqlite": {"path": "runs.db"}}}.
// Expressions are evaluated without variables or functions.
func FromHCL(filename string, data []byte) (Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("parse hcl: %w", diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return Config{}, fmt.Errorf("parse hcl: unexpected body type %T", file.Body)
	}
	m, err := decodeBody(body)
	if err != nil {
		return Config{}, fmt.Errorf("decode hcl: %w", err)
	}
	return New(m), nil
}

func decodeBody(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(&hcl.EvalContext{})
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = native
	}

	for _, block := range body.Blocks {
		inner, err := decodeBody(block.Body)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", block.Type, err)
		}
		target := out
		key := block.Type
		for _, label := range block.Labels {
			next, ok := target[key].(map[string]any)
			if !ok {
				next = make(map[string]any)
				target[key] = next
			}
			target, key = next, label
		}
		if existing, ok := target[key].(map[string]any); ok {
			for k, v := range inner {
				existing[k] = v
			}
			continue
		}
		target[key] = inner
	}
	return out, nil
}

func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
