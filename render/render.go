// Package render declares the boundary to the out-of-core HTML rendering
// collaborator. PlainHTML is deliberately minimal: it exists to exercise the
// persisted-state boundary (the dry-run HTML artifact), not to replace a
// real templated renderer.
package render

import (
	"html/template"
	"strings"

	"github.com/evalgo/digestengine/model"
)

// Collaborator renders a category->items map into a single document.
type Collaborator interface {
	Render(items map[model.Category][]model.Item) (string, error)
}

// PlainHTML renders one section per category, each a list of title/source/
// published-at/body entries, using html/template for escaping since no
// pack library covers HTML templating.
type PlainHTML struct{}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Technology Digest</title></head><body>
{{range .}}
<h1>{{.Category}}</h1>
{{range .Items}}
<article>
<h2><a href="{{.URL}}">{{.Title}}</a></h2>
<p class="meta">{{.Source}} &middot; {{.PublishedAt.Format "2006-01-02"}}{{if .Importance}} &middot; {{.Importance}}{{end}}</p>
<p>{{.Body}}</p>
</article>
{{end}}
{{end}}
</body></html>
`))

type categorySection struct {
	Category model.Category
	Items    []model.Item
}

// Render produces the digest HTML document for items, iterating categories
// in the fixed order frontend, backend, devops regardless of map iteration
// order.
func (PlainHTML) Render(items map[model.Category][]model.Item) (string, error) {
	var sections []categorySection
	for _, cat := range []model.Category{model.CategoryFrontend, model.CategoryBackend, model.CategoryDevOps} {
		if v, ok := items[cat]; ok && len(v) > 0 {
			sections = append(sections, categorySection{Category: cat, Items: v})
		}
	}

	var b strings.Builder
	if err := digestTemplate.Execute(&b, sections); err != nil {
		return "", err
	}
	return b.String(), nil
}
