package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// BlockService is the labeled block type of service sections:
//
//	service "ssh" {
//	  protocol = "tcp"
//	  dport    = 22
//	}
const BlockService = "service"

// LoadHCL parses an HCL policy. Unlabeled blocks become sections named by
// their type, service blocks become sections named by their label and the
// defaults block fills the fallback section. Blocks and attributes keep
// source order.
func LoadHCL(data []byte, filename string) (*Store, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected HCL body type %T", filename, file.Body)
	}

	if attrs := sortedAttributes(body); len(attrs) > 0 {
		return nil, fmt.Errorf("%s: attribute %q must be inside a block", attrs[0].SrcRange, attrs[0].Name)
	}

	store := NewStore()
	for _, block := range body.Blocks {
		var sec *Section
		switch {
		case block.Type == BlockService:
			if len(block.Labels) != 1 {
				return nil, fmt.Errorf("%s: service block needs exactly one label", block.DefRange())
			}
			var err error
			if sec, err = store.AddSection(block.Labels[0]); err != nil {
				return nil, fmt.Errorf("%s: %w", block.DefRange(), err)
			}
		case len(block.Labels) != 0:
			return nil, fmt.Errorf("%s: block %q takes no label", block.DefRange(), block.Type)
		case block.Type == SectionDefaults:
			sec = store.Defaults()
		case !IsReserved(block.Type):
			return nil, fmt.Errorf("%s: unknown block %q (services are declared as service \"name\" {})", block.DefRange(), block.Type)
		default:
			var err error
			if sec, err = store.AddSection(block.Type); err != nil {
				return nil, fmt.Errorf("%s: %w", block.DefRange(), err)
			}
		}

		if err := decodeBody(block.Body, sec); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func decodeBody(body *hclsyntax.Body, sec *Section) error {
	if len(body.Blocks) > 0 {
		return fmt.Errorf("%s: nested blocks are not supported", body.Blocks[0].DefRange())
	}
	for _, attr := range sortedAttributes(body) {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("%s: %s", attr.SrcRange, diags.Error())
		}
		v, err := ctyToValue(val)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", attr.SrcRange, attr.Name, err)
		}
		sec.Set(attr.Name, v)
	}
	return nil
}

// sortedAttributes returns the body's attributes in source order.
func sortedAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, a := range body.Attributes {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs
}

func ctyToValue(val cty.Value) (Value, error) {
	if val.IsNull() {
		return Scalar(""), nil
	}
	ty := val.Type()
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		var items []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			s, err := ctyToString(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, s)
		}
		return List(items...), nil
	}
	s, err := ctyToString(val)
	if err != nil {
		return Value{}, err
	}
	return Scalar(s), nil
}

func ctyToString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", nil
	}
	if !val.Type().IsPrimitiveType() {
		return "", fmt.Errorf("expected a string, number or bool, got %s", val.Type().FriendlyName())
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}
