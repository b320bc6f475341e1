package descriptor

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/matzehuels/depot/pkg/errors"
)

type pomProject struct {
	GroupID     string `xml:"groupId"`
	ArtifactID  string `xml:"artifactId"`
	Version     string `xml:"version"`
	Packaging   string `xml:"packaging"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	URL         string `xml:"url"`

	Parent       *pomParent      `xml:"parent"`
	Properties   pomProperties   `xml:"properties"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
	Managed      []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
	Repositories []pomRepository `xml:"repositories>repository"`
	Relocation   *pomRelocation  `xml:"distributionManagement>relocation"`
}

type pomParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomDependency struct {
	GroupID    string         `xml:"groupId"`
	ArtifactID string         `xml:"artifactId"`
	Version    string         `xml:"version"`
	Type       string         `xml:"type"`
	Classifier string         `xml:"classifier"`
	Scope      string         `xml:"scope"`
	Optional   string         `xml:"optional"`
	Exclusions []pomExclusion `xml:"exclusions>exclusion"`
}

// key identifies a dependency for merging and management, ignoring its
// version.
func (d pomDependency) key() string {
	ext, cls := typeExtension(d.Type, d.Classifier)
	return d.GroupID + ":" + d.ArtifactID + ":" + ext + ":" + cls
}

type pomExclusion struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

type pomRepository struct {
	ID        string     `xml:"id"`
	URL       string     `xml:"url"`
	Layout    string     `xml:"layout"`
	Releases  *pomPolicy `xml:"releases"`
	Snapshots *pomPolicy `xml:"snapshots"`
}

type pomPolicy struct {
	Enabled        string `xml:"enabled"`
	UpdatePolicy   string `xml:"updatePolicy"`
	ChecksumPolicy string `xml:"checksumPolicy"`
}

type pomRelocation struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Message    string `xml:"message"`
}

// pomProperties collects the free-form children of <properties>.
type pomProperties map[string]string

func (p *pomProperties) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	props := pomProperties{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var v string
			if err := d.DecodeElement(&v, &t); err != nil {
				return err
			}
			props[t.Name.Local] = strings.TrimSpace(v)
		case xml.EndElement:
			*p = props
			return nil
		}
	}
}

func parsePOM(data []byte) (*pomProject, error) {
	var pom pomProject
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&pom); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "malformed pom")
	}
	pom.trim()
	return &pom, nil
}

func (p *pomProject) trim() {
	for _, s := range []*string{&p.GroupID, &p.ArtifactID, &p.Version, &p.Packaging} {
		*s = strings.TrimSpace(*s)
	}
	if p.Parent != nil {
		p.Parent.GroupID = strings.TrimSpace(p.Parent.GroupID)
		p.Parent.ArtifactID = strings.TrimSpace(p.Parent.ArtifactID)
		p.Parent.Version = strings.TrimSpace(p.Parent.Version)
	}
	for _, deps := range [][]pomDependency{p.Dependencies, p.Managed} {
		for i := range deps {
			d := &deps[i]
			for _, s := range []*string{&d.GroupID, &d.ArtifactID, &d.Version, &d.Type, &d.Classifier, &d.Scope, &d.Optional} {
				*s = strings.TrimSpace(*s)
			}
		}
	}
}

// typeExtension maps a dependency type to the file extension and classifier
// of the artifact it refers to.
func typeExtension(typ, classifier string) (ext, cls string) {
	switch typ {
	case "", "jar", "bundle", "maven-plugin", "ejb":
		return "jar", classifier
	case "ejb-client":
		if classifier == "" {
			classifier = "client"
		}
		return "jar", classifier
	case "test-jar":
		if classifier == "" {
			classifier = "tests"
		}
		return "jar", classifier
	case "java-source":
		if classifier == "" {
			classifier = "sources"
		}
		return "jar", classifier
	case "javadoc":
		if classifier == "" {
			classifier = "javadoc"
		}
		return "jar", classifier
	}
	return typ, classifier
}
