package setup

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"fountain/internal/cache"
	"fountain/internal/fault"
	"fountain/internal/tool"
	"fountain/internal/workspace"
)

var (
	treeStartRe = regexp.MustCompile(`maven-dependency-plugin:.*:tree`)
	artifactRe  = regexp.MustCompile(`^([^:]+):([^:]+):(\w+):([^:]+)(?::(.*))?$`)
)

const treeEndMarker = "----------"

// Classpath returns the fork's compile classpath as group:artifact:version
// coordinates, recomputing it from the dependency tree when the fork commit
// changed or force is set.
func Classpath(ctx context.Context, ws *workspace.Context, force bool) ([]string, error) {
	commit, err := ws.Commit()
	if err != nil {
		return nil, err
	}
	if !force {
		e, ok, err := ws.Cache().Get(cache.StageClasspath)
		if err != nil {
			return nil, err
		}
		if ok && e.Key == commit && len(e.Metadata[cache.MetaClasspath]) > 0 {
			return e.Metadata[cache.MetaClasspath], nil
		}
	}
	ws.Log.Info("---- Recomputing fork classpath")
	cmd, err := tool.Expand(ws.Config.Tools.DependencyTree, nil)
	if err != nil {
		return nil, err
	}
	cmd.Dir = ws.ForkDir()
	res, err := tool.Check(ctx, ws.Runner, "resolve dependency tree", cmd)
	if err != nil {
		return nil, err
	}
	exclude := strings.ToLower(filepath.Base(ws.Config.ForkDir))
	cp, err := ParseDependencyTree(res.Stdout, exclude)
	if err != nil {
		return nil, err
	}
	if err := ws.Cache().Put(cache.StageClasspath, commit, map[string][]string{cache.MetaClasspath: cp}); err != nil {
		return nil, err
	}
	return cp, nil
}

// ParseDependencyTree extracts compile-scope jar coordinates from the
// output of "mvn dependency:tree". Artifacts whose group contains exclude
// (the fork's own modules) are skipped.
func ParseDependencyTree(output, exclude string) ([]string, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if treeStartRe.MatchString(sc.Text()) {
			return parseTreeBody(sc, exclude)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fault.Configf("parse dependency tree", "", "no dependency tree found in output")
}

func parseTreeBody(sc *bufio.Scanner, exclude string) ([]string, error) {
	var out []string
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, treeEndMarker) {
			if len(out) == 0 {
				return nil, fault.Configf("parse dependency tree", "", "dependency tree is empty")
			}
			return out, nil
		}
		if !strings.HasPrefix(line, "[INFO]") {
			return nil, fault.Configf("parse dependency tree", "", "unexpected line %q", line)
		}
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimPrefix(line, "[INFO]"), `\|-+ `))
		if line == "" {
			continue
		}
		m := artifactRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fault.Configf("parse dependency tree", "", "unexpected artifact %q", line)
		}
		group, artifact, kind, version, scope := m[1], m[2], m[3], m[4], m[5]
		switch kind {
		case "pom":
			continue
		case "jar":
		default:
			return nil, fault.Configf("parse dependency tree", "", "unexpected packaging %q in %q", kind, line)
		}
		switch scope {
		case "", "compile":
		case "runtime", "test", "provided":
			continue
		default:
			return nil, fault.Configf("parse dependency tree", "", "unknown scope %q in %q", scope, line)
		}
		if exclude != "" && strings.Contains(group, exclude) {
			continue
		}
		out = append(out, fmt.Sprintf("%s:%s:%s", group, artifact, version))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fault.Configf("parse dependency tree", "", "unexpected end of output")
}
