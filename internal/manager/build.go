package manager

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrunalp/fileutils"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/util"
)

// BuildOptions collects the `build` verb's flags (spec.md §6).
type BuildOptions struct {
	NameTag      string
	ImagefilePath string
	NoCache      bool
}

// buildState accumulates the Imagefile grammar's directives as they are
// interpreted, mirroring a Dockerfile builder's running config.
type buildState struct {
	root       string
	env        []string
	workdir    string
	defaultCmd []string
}

// Build interprets the Imagefile grammar of spec.md §6: FROM seeds the image
// root from an existing rootfs directory, ENV/WORKDIR/CMD/ENTRYPOINT adjust
// the running config, RUN executes a shell command inside a throwaway
// container against the image root under construction, and COPY stages a
// host file or directory into it. The result is registered under NameTag.
func (m *Manager) Build(opts BuildOptions) (*model.Image, error) {
	lines, err := readImagefile(opts.ImagefilePath)
	if err != nil {
		return nil, err
	}

	imageDir := filepath.Join(m.rt.StateRoot, "images", "build-"+sanitizeTag(opts.NameTag))
	st := &buildState{root: imageDir}

	for i, line := range lines {
		if err := m.applyDirective(st, line); err != nil {
			return nil, ioerr.Wrap(ioerr.KindConfigInvalid, err, "Imagefile line "+strconv.Itoa(i+1))
		}
	}

	if st.root == imageDir {
		if _, err := os.Stat(imageDir); err != nil {
			return nil, ioerr.New(ioerr.KindConfigInvalid, "Imagefile must start with FROM")
		}
	}

	img := model.Image{
		NameTag:    opts.NameTag,
		RootPath:   imageDir,
		DefaultCmd: st.defaultCmd,
		DefaultEnv: st.env,
	}
	if err := m.images.Register(img); err != nil {
		return nil, err
	}
	return &img, nil
}

func readImagefile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.KindConfigInvalid, err, "opening Imagefile")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func (m *Manager) applyDirective(st *buildState, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToUpper(verb) {
	case "FROM":
		if err := os.MkdirAll(filepath.Dir(st.root), 0755); err != nil {
			return err
		}
		return copyTree(rest, st.root)

	case "ENV":
		name, _, err := util.GetEnvVarInfo(rest)
		if err != nil {
			return err
		}
		// A repeated ENV K=V overrides the earlier entry instead of shadowing
		// it, the same "last one wins" rule a Dockerfile builder applies.
		st.env = util.StringSliceRemoveMatch(st.env, func(e string) bool {
			n, _, _ := util.GetEnvVarInfo(e)
			return n == name
		})
		st.env = append(st.env, rest)
		return nil

	case "WORKDIR":
		st.workdir = rest
		return os.MkdirAll(filepath.Join(st.root, rest), 0755)

	case "COPY":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return ioerr.New(ioerr.KindConfigInvalid, "COPY requires <src> <dst>")
		}
		dst := filepath.Join(st.root, parts[1])
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if info, err := os.Stat(parts[0]); err == nil && info.IsDir() {
			return copyTree(parts[0], dst)
		}
		return fileutils.CopyFile(parts[0], dst)

	case "RUN":
		argv := []string{"/bin/sh", "-c", rest}
		c, err := m.Run(RunOptions{
			ImageRoot: st.root,
			Argv:      argv,
			Env:       st.env,
			Workdir:   st.workdir,
			NoOverlay: true,
			Net:       "none",
		})
		if err != nil {
			return err
		}
		defer m.store.RemoveContainer(c.ID)
		if c.ExitCode != 0 {
			return ioerr.New(ioerr.KindConfigInvalid, "RUN command exited "+strconv.Itoa(c.ExitCode)+": "+rest)
		}
		return nil

	case "CMD", "ENTRYPOINT":
		argv, err := parseArgvLiteral(rest)
		if err != nil {
			return err
		}
		st.defaultCmd = argv
		return nil

	default:
		return ioerr.New(ioerr.KindConfigInvalid, "unknown Imagefile directive: "+verb)
	}
}

// parseArgvLiteral parses the JSON-array form CMD/ENTRYPOINT use, e.g.
// `["/bin/sh", "-c", "echo hi"]`.
func parseArgvLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []string
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		field = strings.Trim(field, `"`)
		if field != "" {
			out = append(out, field)
		}
	}
	if len(out) == 0 {
		return nil, ioerr.New(ioerr.KindConfigInvalid, "empty argv literal")
	}
	return out, nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fileutils.CreateIfNotExists(target, true)
		}
		return fileutils.CopyFile(path, target)
	})
}

func sanitizeTag(tag string) string {
	out := make([]rune, 0, len(tag))
	for _, r := range tag {
		switch r {
		case '/', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// Images lists every registered image.
func (m *Manager) Images() ([]model.Image, error) {
	return m.images.List()
}

// Rmi removes a registered image record.
func (m *Manager) Rmi(nameTag string) error {
	return m.images.Remove(nameTag)
}
