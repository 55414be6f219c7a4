package content

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteDataFile is the name of the site data file inside the content dir.
const SiteDataFile = "site.yaml"

type Profile struct {
	Name    string `yaml:"name"`
	Tagline string `yaml:"tagline"`
	Image   string `yaml:"image"`
}

type NavItem struct {
	Name string `yaml:"name"`
	Href string `yaml:"href"`
}

type Degree struct {
	Title       string `yaml:"title"`
	Institution string `yaml:"institution"`
	Location    string `yaml:"location"`
	Period      string `yaml:"period"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

type Certificate struct {
	Title       string `yaml:"title"`
	Issuer      string `yaml:"issuer"`
	Period      string `yaml:"period"`
	Status      string `yaml:"status"`
	Description string `yaml:"description"`
}

// InProgress reports whether the status marks ongoing work.
func (d Degree) InProgress() bool      { return d.Status == "in-progress" }
func (c Certificate) InProgress() bool { return c.Status == "in-progress" }

type Skill struct {
	Name     string `yaml:"name"`
	Icon     string `yaml:"icon"`
	IconType string `yaml:"icon_type"`
}

// IconURL is the image shown for the skill.
func (s Skill) IconURL() string {
	icon := url.PathEscape(s.Icon)
	if s.IconType == "devicon" {
		return "https://cdn.jsdelivr.net/gh/devicons/devicon/icons/" + icon + "/" + icon + "-original.svg"
	}
	return "https://cdn.simpleicons.org/" + strings.ToLower(icon) + "/ffffff"
}

type SkillGroup struct {
	Category string  `yaml:"category"`
	Skills   []Skill `yaml:"skills"`
}

// SiteData is the hand-maintained part of the site.
type SiteData struct {
	Profile      Profile       `yaml:"profile"`
	Navigation   []NavItem     `yaml:"navigation"`
	TopProjects  []string      `yaml:"top_projects"`
	Degrees      []Degree      `yaml:"degrees"`
	Certificates []Certificate `yaml:"certificates"`
	Skills       []SkillGroup  `yaml:"skills"`
}

// DefaultNavigation is used when site.yaml lists none.
func DefaultNavigation() []NavItem {
	return []NavItem{
		{Name: "Projects", Href: "/projects"},
		{Name: "Education", Href: "/education"},
	}
}

// LoadSiteData reads path. A missing file yields defaults.
func LoadSiteData(path string) (SiteData, error) {
	var data SiteData
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data.Navigation = DefaultNavigation()
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read site data: %w", err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(data.Navigation) == 0 {
		data.Navigation = DefaultNavigation()
	}
	return data, nil
}
