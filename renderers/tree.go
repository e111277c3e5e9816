package renderers

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
	"github.com/GoCodeAlone/pageview/urlstate"
)

// TreeNode is one item of a tree built from flat records.
type TreeNode struct {
	Key      string
	Name     string
	Record   map[string]any
	Children []*TreeNode
}

// TreeConfig names the record fields a tree is built from.
type TreeConfig struct {
	RowKey      string
	ParentField string
	LabelField  string
}

func (c TreeConfig) withDefaults() TreeConfig {
	if c.RowKey == "" {
		c.RowKey = "id"
	}
	if c.ParentField == "" {
		c.ParentField = "parentId"
	}
	if c.LabelField == "" {
		c.LabelField = "name"
	}
	return c
}

// BuildTree links flat records into a forest. Records without a parent, or
// whose parent is "root", are top level; records pointing at a missing parent
// are dropped.
func BuildTree(records []model.ViewObject, cfg TreeConfig) []*TreeNode {
	cfg = cfg.withDefaults()
	nodes := make(map[string]*TreeNode, len(records))
	for _, rec := range records {
		key := rec.String(cfg.RowKey)
		nodes[key] = &TreeNode{Key: key, Name: rec.String(cfg.LabelField), Record: rec}
	}
	var top []*TreeNode
	for _, rec := range records {
		n := nodes[rec.String(cfg.RowKey)]
		parent := rec.String(cfg.ParentField)
		if parent == "" || parent == "root" {
			top = append(top, n)
			continue
		}
		if pn, ok := nodes[parent]; ok {
			pn.Children = append(pn.Children, n)
		}
	}
	return top
}

// Prune keeps nodes whose name contains term, their ancestors and their
// descendants. The match ignores case.
func Prune(nodes []*TreeNode, term string) []*TreeNode {
	if term == "" {
		return nodes
	}
	term = strings.ToLower(term)
	var out []*TreeNode
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Name), term) {
			out = append(out, n)
			continue
		}
		if kids := Prune(n.Children, term); len(kids) > 0 {
			cp := *n
			cp.Children = kids
			out = append(out, &cp)
		}
	}
	return out
}

// Tree renders records fetched from the api as a nested list. Leaves perform
// the onClick operation with their record. The "<bucket>.q" query parameter
// narrows the tree to matching names.
func Tree(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	bucket := bucketID(caps, p)
	params := urlstate.Params(caps.Query)
	if api := vo.String("api"); api != "" {
		apiURL := caps.Engine.Evaluate(api, caps.Params())
		deps := fmt.Sprintf("%s|%d", apiURL, caps.Store.Effect(bucket))
		caps.FetchOnce(bucket, deps, func(ctx context.Context) error {
			if caps.Client == nil {
				return fmt.Errorf("no backend client for %s", apiURL)
			}
			return caps.Store.FetchData(ctx, bucket, apiURL, params,
				pagestore.WithGetter(caps.Client),
				pagestore.WithTransform(func(payload any) (any, map[string]any) {
					list, _ := payload.([]any)
					if list == nil {
						list = []any{}
					}
					return list, nil
				}),
			)
		})
	}
	loadDict(caps, bucket, table(caps, vo), params, "")

	raw, _ := caps.Store.Data(bucket)
	roots := BuildTree(model.AsViewObjects(raw), TreeConfig{
		RowKey:      vo.String("rowKey"),
		ParentField: vo.String("parentField"),
		LabelField:  vo.String("labelField"),
	})
	out := render.Element("div").Class("pv-tree", vo.ClassName())
	if len(roots) == 0 {
		return out.Append(render.Element("div", render.Text("No data")).Class("pv-empty"))
	}

	searchKey := bucket + ".q"
	term := caps.Query.Get(searchKey)
	out.Append(render.Element("form",
		input("search", term).Set("name", searchKey).Set("placeholder", "Search").Class("pv-input"),
	).Set("method", "get").Set("action", PageURL(caps, nil)).Class("pv-tree-search"))

	var op *model.Operation
	if id := vo.String("onClick"); id != "" {
		if op = caps.Model.Operation(id); op == nil {
			caps.Log().Warn("tree click operation not found", "operation", id)
		}
	}
	return out.Append(treeList(caps, Prune(roots, term), op))
}

func treeList(caps *builder.Capabilities, nodes []*TreeNode, op *model.Operation) *render.Node {
	ul := render.Element("ul")
	for _, n := range nodes {
		li := render.Element("li").WithKey(n.Key)
		if len(n.Children) > 0 {
			li.Append(render.Element("details",
				render.Element("summary", render.Text(n.Name)),
				treeList(caps, n.Children, op),
			).Set("open", "open")).Class("pv-tree-folder")
		} else if op != nil {
			leaf := *op
			leaf.Label = n.Name
			li.Append(operationButton(caps, &leaf, nil, n.Record, "ghost", "pv-tree-leaf"))
		} else {
			li.Append(span(n.Name)).Class("pv-tree-leaf")
		}
		ul.Append(li)
	}
	return ul
}
