// Site profiles describe the structural shape of the page being moderated: which elements are content units, where their text, author and permalink live, and how deep the display container sits above the action bar.
//
// The default profile matches the X/Twitter web timeline. Profiles can be overridden from YAML, in which case unset fields keep their default values.
package profile

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/bluesky-social/veil/dom"

	"gopkg.in/yaml.v3"
)

var ErrInvalidProfile = errors.New("invalid site profile")

type Profile struct {
	Name string `yaml:"name"`

	// subtree to observe for insertions
	Observe string `yaml:"observe"`
	// shape of one content unit
	Unit string `yaml:"unit"`
	// designated text-bearing descendant of a unit
	Text string `yaml:"text"`
	// leaf text segments inside the text container
	TextLeaf string `yaml:"text_leaf"`
	// profile link; first path segment is the author handle
	Author string `yaml:"author"`
	// permalink to the unit; the id is extracted with PermalinkPattern
	Permalink        string `yaml:"permalink"`
	PermalinkPattern string `yaml:"permalink_pattern"`
	// engagement bar inside the unit; the display container is ContainerDepth levels above it
	ActionGroup    string `yaml:"action_group"`
	ContainerDepth int    `yaml:"container_depth"`

	WarningText    string `yaml:"warning_text"`
	RevealText     string `yaml:"reveal_text"`
	HighlightColor string `yaml:"highlight_color"`

	observe     dom.Selector
	unit        dom.Selector
	text        dom.Selector
	textLeaf    dom.Selector
	author      dom.Selector
	permalink   dom.Selector
	actionGroup dom.Selector
	permalinkRe *regexp.Regexp
}

func defaults() Profile {
	return Profile{
		Name:             "x.com",
		Observe:          "body",
		Unit:             `article[role="article"]`,
		Text:             `[data-testid="tweetText"]`,
		TextLeaf:         "span",
		Author:           `a[href^="/"][role="link"]`,
		Permalink:        `a[href*="/status/"]`,
		PermalinkPattern: `status/(\d+)`,
		ActionGroup:      `div[role="group"]`,
		ContainerDepth:   3,
		WarningText:      "⚠️ Possible Cyberbullying",
		RevealText:       "Show Tweet",
		HighlightColor:   "#b00020",
	}
}

func Default() *Profile {
	p := defaults()
	if err := p.Compile(); err != nil {
		panic(err)
	}
	return &p
}

// Parses YAML on top of the default profile.
func Parse(data []byte) (*Profile, error) {
	p := defaults()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site profile: %w", err)
	}
	return Parse(data)
}

// Validates the profile and compiles its selectors and patterns.
func (p *Profile) Compile() error {
	sels := []struct {
		name string
		raw  string
		dst  *dom.Selector
	}{
		{"observe", p.Observe, &p.observe},
		{"unit", p.Unit, &p.unit},
		{"text", p.Text, &p.text},
		{"text_leaf", p.TextLeaf, &p.textLeaf},
		{"author", p.Author, &p.author},
		{"permalink", p.Permalink, &p.permalink},
		{"action_group", p.ActionGroup, &p.actionGroup},
	}
	for _, s := range sels {
		if s.raw == "" {
			return fmt.Errorf("%w: empty %s selector", ErrInvalidProfile, s.name)
		}
		sel, err := dom.ParseSelector(s.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, s.name, err)
		}
		*s.dst = sel
	}

	re, err := regexp.Compile(p.PermalinkPattern)
	if err != nil {
		return fmt.Errorf("%w: permalink_pattern: %w", ErrInvalidProfile, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("%w: permalink_pattern needs a capture group", ErrInvalidProfile)
	}
	p.permalinkRe = re

	if p.ContainerDepth < 1 {
		return fmt.Errorf("%w: container_depth must be positive", ErrInvalidProfile)
	}
	return nil
}

func (p *Profile) ObserveSelector() dom.Selector     { return p.observe }
func (p *Profile) UnitSelector() dom.Selector        { return p.unit }
func (p *Profile) TextSelector() dom.Selector        { return p.text }
func (p *Profile) TextLeafSelector() dom.Selector    { return p.textLeaf }
func (p *Profile) AuthorSelector() dom.Selector      { return p.author }
func (p *Profile) PermalinkSelector() dom.Selector   { return p.permalink }
func (p *Profile) ActionGroupSelector() dom.Selector { return p.actionGroup }
func (p *Profile) PermalinkRegexp() *regexp.Regexp   { return p.permalinkRe }
