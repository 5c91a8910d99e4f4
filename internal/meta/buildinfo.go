// Package meta detects the fork's build system so setup can pick default
// build and clean commands when the configuration names none.
//
// Parsing is best-effort: absent or partial build files yield an unknown
// build rather than an error.
package meta

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	Maven  = "maven"
	Gradle = "gradle"
)

// Info is a minimal summary of the fork's build metadata.
type Info struct {
	Build   string // Maven | Gradle | "" (unknown)
	Module  string // artifact or root project name
	Version string
	JDK     string // e.g. "8", "17"
}

// Detect inspects the fork root. Maven wins over Gradle.
func Detect(root string) Info {
	if p := firstExisting(root, "pom.xml"); p != "" {
		if inf, ok := detectMaven(root, p); ok {
			return inf
		}
	}
	if p := firstExisting(root, "build.gradle", "build.gradle.kts"); p != "" {
		if inf, ok := detectGradle(root, p); ok {
			return inf
		}
	}
	return Info{}
}

// BuildCommand returns the argv that builds and installs the fork.
func (i Info) BuildCommand() []string {
	switch i.Build {
	case Maven:
		return []string{"mvn", "-B", "install", "-DskipTests"}
	case Gradle:
		return []string{"./gradlew", "build", "-x", "test"}
	}
	return nil
}

// CleanCommand returns the argv that removes the fork's build output.
func (i Info) CleanCommand() []string {
	switch i.Build {
	case Maven:
		return []string{"mvn", "-B", "clean"}
	case Gradle:
		return []string{"./gradlew", "clean"}
	}
	return nil
}

// OutputDir is where the build writes its artifacts, relative to the root.
func (i Info) OutputDir() string {
	switch i.Build {
	case Maven:
		return "target"
	case Gradle:
		return "build"
	}
	return ""
}

// ------------------------------ Maven ----------------------------------------

type pomXML struct {
	XMLName    xml.Name  `xml:"project"`
	ArtifactID string    `xml:"artifactId"`
	Version    string    `xml:"version"`
	Parent     pomParent `xml:"parent"`
	Props      pomProps  `xml:"properties"`
}

type pomParent struct {
	Version string `xml:"version"`
}

type pomProps struct {
	Source  string `xml:"maven.compiler.source"`
	Target  string `xml:"maven.compiler.target"`
	Release string `xml:"maven.compiler.release"`
}

func detectMaven(root, pomPath string) (Info, bool) {
	b, err := os.ReadFile(pomPath)
	if err != nil {
		return Info{}, false
	}
	var p pomXML
	if err := xml.Unmarshal(b, &p); err != nil {
		return Info{}, false
	}
	mod := p.ArtifactID
	if mod == "" {
		mod = filepath.Base(root)
	}
	return Info{
		Build:   Maven,
		Module:  mod,
		Version: firstNonEmpty(p.Version, p.Parent.Version),
		JDK:     normalizeJDK(firstNonEmpty(p.Props.Release, p.Props.Target, p.Props.Source)),
	}, true
}

// ------------------------------ Gradle ---------------------------------------

var (
	reGradleCompat   = regexp.MustCompile(`(?m)^\s*(?:sourceCompatibility|targetCompatibility)\s*=\s*(?:JavaVersion\.VERSION_)?["']?(\d{1,2}(?:[._]\d)?)["']?`)
	reGradleVersion  = regexp.MustCompile(`(?m)^\s*version\s*=\s*["']([^"']+)["']`)
	reGradleRootName = regexp.MustCompile(`(?m)^\s*rootProject\.name\s*=\s*["']([^"']+)["']`)
)

func detectGradle(root, buildPath string) (Info, bool) {
	b, err := os.ReadFile(buildPath)
	if err != nil {
		return Info{}, false
	}
	text := string(b)
	inf := Info{Build: Gradle, Module: filepath.Base(root)}
	if m := reGradleCompat.FindStringSubmatch(text); m != nil {
		inf.JDK = normalizeJDK(strings.ReplaceAll(m[1], "_", "."))
	}
	if m := reGradleVersion.FindStringSubmatch(text); m != nil {
		inf.Version = m[1]
	}
	if p := firstExisting(root, "settings.gradle", "settings.gradle.kts"); p != "" {
		if s, err := os.ReadFile(p); err == nil {
			if m := reGradleRootName.FindStringSubmatch(string(s)); m != nil {
				inf.Module = m[1]
			}
		}
	}
	return inf, true
}

// ---------------------------- helpers ---------------------------------------

func firstExisting(root string, names ...string) string {
	for _, n := range names {
		p := filepath.Join(root, n)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// normalizeJDK coerces "1.8", "17.0.1" or "21" into "8", "17", "21".
func normalizeJDK(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "1.") && len(s) >= 3 {
		return strings.TrimPrefix(s, "1.")
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		out.WriteByte(s[i])
	}
	return out.String()
}
