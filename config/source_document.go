package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/evalgo/digestengine/model"
)

// RepoDoc is the YAML shape of one tracked repository entry. Strict
// decoding (see LoadSourceDocument) rejects any key not listed here.
type RepoDoc struct {
	Owner             string   `yaml:"owner"`
	Name              string   `yaml:"name"`
	DisplayName       string   `yaml:"display_name"`
	Strategy          string   `yaml:"strategy"`
	ReleaseNotesFiles []string `yaml:"release_notes_files"`
}

// ToModel converts a RepoDoc into the canonical model.RepoRef, defaulting an
// empty or unrecognized strategy to auto.
func (d RepoDoc) ToModel() model.RepoRef {
	strategy := model.StrategyAuto
	switch d.Strategy {
	case string(model.StrategyReleasesOnly):
		strategy = model.StrategyReleasesOnly
	case string(model.StrategyTagsOnly):
		strategy = model.StrategyTagsOnly
	}
	return model.RepoRef{
		Owner:             d.Owner,
		Name:              d.Name,
		DisplayName:       d.DisplayName,
		Strategy:          strategy,
		ReleaseNotesFiles: d.ReleaseNotesFiles,
	}
}

// FeedDoc is the YAML shape of a syndication feed entry.
type FeedDoc struct {
	URL         string `yaml:"url"`
	DisplayName string `yaml:"display_name"`
}

func (d FeedDoc) ToModel() model.FeedRef {
	return model.FeedRef{URL: d.URL, DisplayName: d.DisplayName}
}

// RegistryDoc is the YAML shape of a package-registry entry.
type RegistryDoc struct {
	Ecosystem   string `yaml:"ecosystem"`
	PackageName string `yaml:"package_name"`
	DisplayName string `yaml:"display_name"`
}

func (d RegistryDoc) ToModel() model.RegistryRef {
	return model.RegistryRef{Ecosystem: d.Ecosystem, PackageName: d.PackageName, DisplayName: d.DisplayName}
}

// AdvisoryDoc is the YAML shape of an advisory-ecosystem entry.
type AdvisoryDoc struct {
	Ecosystem   string `yaml:"ecosystem"`
	DisplayName string `yaml:"display_name"`
}

func (d AdvisoryDoc) ToModel() model.AdvisoryRef {
	return model.AdvisoryRef{Ecosystem: d.Ecosystem, DisplayName: d.DisplayName}
}

// CategoryDoc groups one category's sources.
type CategoryDoc struct {
	Repos      []RepoDoc     `yaml:"repos"`
	Feeds      []FeedDoc     `yaml:"feeds"`
	Registries []RegistryDoc `yaml:"registries"`
	Advisories []AdvisoryDoc `yaml:"advisories"`
}

// SourceDocument is the top-level YAML configuration grouping every tracked
// source by category.
type SourceDocument struct {
	Categories map[string]CategoryDoc `yaml:"categories"`
}

// LoadSourceDocument decodes a YAML source document with strict field
// checking: an unrecognized key anywhere in the document is a load-time
// error rather than a silently ignored typo.
func LoadSourceDocument(data []byte) (*SourceDocument, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc SourceDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode source document: %w", err)
	}
	return &doc, nil
}

// ToModel converts every category in the document into model.CategoryConfig
// values, keyed by category name.
func (doc *SourceDocument) ToModel() []model.CategoryConfig {
	out := make([]model.CategoryConfig, 0, len(doc.Categories))
	for name, cat := range doc.Categories {
		cc := model.CategoryConfig{Name: model.Category(name)}
		for _, r := range cat.Repos {
			cc.Repos = append(cc.Repos, r.ToModel())
		}
		for _, f := range cat.Feeds {
			cc.Feeds = append(cc.Feeds, f.ToModel())
		}
		for _, r := range cat.Registries {
			cc.Registries = append(cc.Registries, r.ToModel())
		}
		for _, a := range cat.Advisories {
			cc.Advisories = append(cc.Advisories, a.ToModel())
		}
		out = append(out, cc)
	}
	return out
}
