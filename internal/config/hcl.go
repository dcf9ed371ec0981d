package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclItem mirrors Item in HCL block form:
//
//	item "web" {
//	  type       = "app"
//	  dir        = "~/src/web"
//	  commands   = ["pnpm install", ["pnpm lint", "pnpm test"]]
//	  depends_on = "ui-kit"
//	}
type hclItem struct {
	Name      string         `hcl:"name,label"`
	Type      string         `hcl:"type"`
	Dir       string         `hcl:"dir"`
	Commands  hcl.Expression `hcl:"commands"`
	DependsOn *string        `hcl:"depends_on,optional"`
	AutoPack  *bool          `hcl:"auto_pack,optional"`
}

type hclRoot struct {
	Items []*hclItem `hcl:"item,block"`
}

// parseHCLFile reads an HCL configuration and translates it into the same
// item model produced by the JSON path.
func parseHCLFile(path string) ([]Item, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, diags
	}

	items := make([]Item, 0, len(root.Items))
	for _, raw := range root.Items {
		stages, err := decodeStages(raw.Commands)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", raw.Name, err)
		}
		it := Item{
			Name:     raw.Name,
			Type:     ItemType(raw.Type),
			Dir:      raw.Dir,
			Commands: stages,
			AutoPack: raw.AutoPack,
		}
		if raw.DependsOn != nil {
			it.DependsOn = *raw.DependsOn
		}
		items = append(items, it)
	}
	return items, nil
}

// decodeStages evaluates a commands expression. Each element is either a
// string (serial stage) or a tuple of strings (parallel group), matching the
// JSON stage shapes.
func decodeStages(expr hcl.Expression) ([]Stage, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() || !val.CanIterateElements() {
		return nil, fmt.Errorf("commands must be a list")
	}

	var stages []Stage
	for iter := val.ElementIterator(); iter.Next(); {
		_, elem := iter.Element()
		switch {
		case elem.Type() == cty.String:
			stages = append(stages, Stage{Commands: []string{elem.AsString()}})
		case elem.CanIterateElements():
			var group []string
			for inner := elem.ElementIterator(); inner.Next(); {
				_, cmd := inner.Element()
				if cmd.Type() != cty.String {
					return nil, fmt.Errorf("parallel group entries must be strings, got %s", cmd.Type().FriendlyName())
				}
				group = append(group, cmd.AsString())
			}
			if len(group) == 0 {
				return nil, fmt.Errorf("parallel command group must not be empty")
			}
			stages = append(stages, Stage{Commands: group, Parallel: true})
		default:
			return nil, fmt.Errorf("command stage must be a string or a list of strings, got %s", elem.Type().FriendlyName())
		}
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("commands must not be empty")
	}
	return stages, nil
}
