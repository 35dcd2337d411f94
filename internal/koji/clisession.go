package koji

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

// RPM dependency sense flags, as rpm defines them.
const (
	rpmsenseLess    = 1 << 1
	rpmsenseGreater = 1 << 2
	rpmsenseEqual   = 1 << 3
	rpmsenseRpmlib  = 1 << 24
)

var createdTask = regexp.MustCompile(`Created task:\s*(\d+)`)

// CLISession implements Session by shelling out to the koji command
// line client, using `koji call --json-output` for hub queries.
type CLISession struct {
	// Path is the koji executable; defaults to "koji" on PATH.
	Path string
	// Profile selects a koji configuration profile (-p).
	Profile string
	// Web is the base URL of the Koji web interface, from the
	// profile configuration.
	Web string
}

var _ Session = (*CLISession)(nil)

func (s *CLISession) path() string {
	if s.Path == "" {
		return "koji"
	}
	return s.Path
}

func (s *CLISession) args(extra ...string) []string {
	var args []string
	if s.Profile != "" {
		args = append(args, "-p", s.Profile)
	}
	return append(args, extra...)
}

// call invokes a hub method via `koji call --json-output` and decodes
// the JSON reply into out.
func (s *CLISession) call(ctx context.Context, out any, method string, callArgs ...string) error {
	args := s.args(append([]string{"call", "--json-output", method}, callArgs...)...)
	cmd := exec.CommandContext(ctx, s.path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("koji call %s: %w: %s", method, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("koji call %s: decoding reply: %w", method, err)
	}
	return nil
}

// Build implements Session by running `koji build --nowait` and
// parsing the created task id out of its output.
func (s *CLISession) Build(ctx context.Context, sourceURL, target string) (int, error) {
	args := s.args("build", "--nowait", target, sourceURL)
	cmd := exec.CommandContext(ctx, s.path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("koji build: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	m := createdTask.FindSubmatch(stdout.Bytes())
	if m == nil {
		return 0, fmt.Errorf("koji build: no task id in output: %s", bytes.TrimSpace(stdout.Bytes()))
	}
	return strconv.Atoi(string(m[1]))
}

type rawTaskInfo struct {
	ID     int       `json:"id"`
	State  TaskState `json:"state"`
	Method string    `json:"method"`
	Arch   string    `json:"arch"`
}

func (r rawTaskInfo) info() TaskInfo {
	label := r.Method
	if r.Arch != "" {
		label = fmt.Sprintf("%s (%s)", r.Method, r.Arch)
	}
	return TaskInfo{ID: r.ID, State: r.State, Label: label}
}

func (s *CLISession) TaskInfo(ctx context.Context, taskID int) (TaskInfo, error) {
	var raw rawTaskInfo
	if err := s.call(ctx, &raw, "getTaskInfo", strconv.Itoa(taskID)); err != nil {
		return TaskInfo{}, err
	}
	return raw.info(), nil
}

func (s *CLISession) TaskChildren(ctx context.Context, taskID int) ([]TaskInfo, error) {
	var raw []rawTaskInfo
	if err := s.call(ctx, &raw, "getTaskChildren", strconv.Itoa(taskID)); err != nil {
		return nil, err
	}
	infos := make([]TaskInfo, len(raw))
	for i, r := range raw {
		infos[i] = r.info()
	}
	return infos, nil
}

func (s *CLISession) ListTagged(ctx context.Context, tag, pkg string) ([]TagListing, error) {
	var raw []struct {
		NVR         string `json:"nvr"`
		CreateEvent int64  `json:"create_event"`
	}
	err := s.call(ctx, &raw, "listTagged", tag, "inherit=True", "latest=True", "package="+pkg)
	if err != nil {
		return nil, err
	}
	listings := make([]TagListing, len(raw))
	for i, r := range raw {
		listings[i] = TagListing{NVR: r.NVR, CreateEvent: r.CreateEvent}
	}
	return listings, nil
}

func (s *CLISession) RepoCreateEvent(ctx context.Context, tag string) (int64, error) {
	var raw struct {
		CreateEvent int64 `json:"create_event"`
	}
	if err := s.call(ctx, &raw, "getRepo", tag); err != nil {
		return 0, err
	}
	return raw.CreateEvent, nil
}

func (s *CLISession) BuildSource(ctx context.Context, nvr string) (string, error) {
	var raw struct {
		Source string `json:"source"`
	}
	if err := s.call(ctx, &raw, "getBuild", nvr); err != nil {
		return "", err
	}
	if raw.Source == "" {
		return "", fmt.Errorf("build %s has no source URL", nvr)
	}
	return raw.Source, nil
}

func (s *CLISession) BuildTarget(ctx context.Context, target string) (Target, error) {
	var raw struct {
		BuildTag string `json:"build_tag_name"`
		DestTag  string `json:"dest_tag_name"`
	}
	if err := s.call(ctx, &raw, "getBuildTarget", target); err != nil {
		return Target{}, err
	}
	if raw.BuildTag == "" {
		return Target{}, fmt.Errorf("no such build target %q", target)
	}
	return Target{BuildTag: raw.BuildTag, DestTag: raw.DestTag}, nil
}

func (s *CLISession) LatestBuilds(ctx context.Context, tag string) ([]BuildInfo, error) {
	var raw []struct {
		PackageName string `json:"package_name"`
		NVR         string `json:"nvr"`
	}
	if err := s.call(ctx, &raw, "listTagged", tag, "inherit=True", "latest=True"); err != nil {
		return nil, err
	}
	builds := make([]BuildInfo, len(raw))
	for i, r := range raw {
		builds[i] = BuildInfo{PackageName: r.PackageName, NVR: r.NVR}
	}
	return builds, nil
}

// BuildRequires fetches the requirements of the build's source RPM
// and renders them as requirement expressions, skipping internal
// rpmlib() dependencies.
func (s *CLISession) BuildRequires(ctx context.Context, nvr string) ([]string, error) {
	var build struct {
		ID int `json:"id"`
	}
	if err := s.call(ctx, &build, "getBuild", nvr); err != nil {
		return nil, err
	}

	var rpms []struct {
		ID   int    `json:"id"`
		Arch string `json:"arch"`
	}
	if err := s.call(ctx, &rpms, "listRPMs", strconv.Itoa(build.ID)); err != nil {
		return nil, err
	}
	srcID := -1
	for _, rpm := range rpms {
		if rpm.Arch == "src" {
			srcID = rpm.ID
			break
		}
	}
	if srcID < 0 {
		return nil, fmt.Errorf("build %s has no source RPM", nvr)
	}

	var deps []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Flags   int    `json:"flags"`
	}
	if err := s.call(ctx, &deps, "getRPMDeps", strconv.Itoa(srcID), "depType=0"); err != nil {
		return nil, err
	}

	var result []string
	for _, dep := range deps {
		if dep.Flags&rpmsenseRpmlib != 0 {
			continue
		}
		if dep.Version != "" {
			result = append(result, fmt.Sprintf("%s %s %s", dep.Name, flagsToRel(dep.Flags), dep.Version))
		} else {
			result = append(result, dep.Name)
		}
	}
	return result, nil
}

func flagsToRel(flags int) string {
	switch flags & (rpmsenseLess | rpmsenseGreater | rpmsenseEqual) {
	case rpmsenseLess:
		return "<"
	case rpmsenseLess | rpmsenseEqual:
		return "<="
	case rpmsenseEqual:
		return "="
	case rpmsenseGreater:
		return ">"
	case rpmsenseGreater | rpmsenseEqual:
		return ">="
	default:
		return "="
	}
}

func (s *CLISession) WebURL() string {
	return s.Web
}
