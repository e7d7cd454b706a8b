package main

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

var (
	ErrNoGroups     = errors.New("no groups configured: pass patterns, --group or a [groups] table")
	ErrKeyCollision = errors.New("group names collide")
)

// Config is the complete, validated configuration of one run. It is built
// once from flags, config file and environment and passed to every step.
type Config struct {
	Root   string
	Repo   string
	Groups []GroupSpec

	Format        string
	SchemaFile    string
	CharsNoSpaces bool
	NoNormalize   bool

	Metrics  []Metric
	OutDir   string
	Combined bool
	TotalKey string

	GithubEnvs bool
	EnvFile    string
	EnvPrefix  string

	ByDirectory bool
	Hidden      bool
	NoIgnore    bool
	Threads     int

	Catalog   string
	Clipboard bool
	PDF       string
	Quiet     bool
	LogLevel  string
}

// loadConfig reads every setting from v (flags, environment and config file
// already merged), the --group values and the positional patterns.
func loadConfig(v *viper.Viper, groupFlags, args []string) (Config, error) {
	cfg := Config{
		Root:          v.GetString("root"),
		Repo:          v.GetString("repo"),
		Format:        v.GetString("format"),
		SchemaFile:    v.GetString("schema_file"),
		CharsNoSpaces: v.GetBool("chars_no_spaces"),
		NoNormalize:   v.GetBool("no_normalize"),
		OutDir:        v.GetString("out_dir"),
		Combined:      v.GetBool("combined"),
		TotalKey:      v.GetString("total_key"),
		GithubEnvs:    v.GetBool("github_envs"),
		EnvFile:       v.GetString("env_file"),
		EnvPrefix:     v.GetString("env_prefix"),
		ByDirectory:   v.GetBool("by_directory"),
		Hidden:        v.GetBool("hidden"),
		NoIgnore:      v.GetBool("no_ignore"),
		Threads:       v.GetInt("threads"),
		Catalog:       v.GetString("catalog"),
		Clipboard:     v.GetBool("clipboard"),
		PDF:           v.GetString("pdf"),
		Quiet:         v.GetBool("quiet"),
		LogLevel:      v.GetString("log_level"),
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}

	metrics, err := parseMetrics(v.GetStringSlice("metrics"))
	if err != nil {
		return Config{}, err
	}
	cfg.Metrics = metrics

	name := v.GetString("name")
	if name == "" {
		name = defaultGroupName(cfg.Root, cfg.Repo)
	}
	groups, err := buildGroupSpecs(v.GetStringMapStringSlice("groups"), groupFlags, args, name)
	if err != nil {
		return Config{}, err
	}
	cfg.Groups = groups

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks everything that can be checked before touching the disk.
func (c Config) validate() error {
	if len(c.Groups) == 0 {
		return ErrNoGroups
	}
	names := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		for _, p := range g.Patterns {
			if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
				return fmt.Errorf("group %q: invalid glob pattern %q: %w", g.Name, p, doublestar.ErrBadPattern)
			}
		}
		names = append(names, g.Name)
	}
	if err := validateGroupNames(names, c.TotalKey); err != nil {
		return err
	}
	if normalizeKey(c.EnvPrefix) == "" {
		return fmt.Errorf("environment prefix %q has no usable characters", c.EnvPrefix)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	return nil
}

// validateGroupNames rejects empty names, the total key used as a group name,
// repeated names and names that would share an environment key. Callers
// merge groups declared twice before validating.
func validateGroupNames(names []string, totalKey string) error {
	byKey := make(map[string]string, len(names))
	for _, name := range names {
		if name == "" {
			return errors.New("group name must not be empty")
		}
		if totalKey != "" && name == totalKey {
			return fmt.Errorf("group name %q is reserved for the grand total (see --total-key)", name)
		}
		key := normalizeKey(name)
		if key == "" {
			return fmt.Errorf("group name %q has no characters usable in an environment key", name)
		}
		if other, ok := byKey[key]; ok {
			if other == name {
				return fmt.Errorf("%w: group %q appears twice", ErrKeyCollision, name)
			}
			return fmt.Errorf("%w: %q and %q both map to %s", ErrKeyCollision, other, name, key)
		}
		byKey[key] = name
	}
	return nil
}

// buildGroupSpecs merges groups from the config file (sorted by name), the
// --group flags (in order) and the positional patterns (group defaultName).
// Repeated names merge their patterns.
func buildGroupSpecs(fromConfig map[string][]string, flags []string, positional []string, defaultName string) ([]GroupSpec, error) {
	var specs []GroupSpec
	index := make(map[string]int)
	add := func(name string, patterns []string) {
		i, ok := index[name]
		if !ok {
			index[name] = len(specs)
			specs = append(specs, GroupSpec{Name: name})
			i = len(specs) - 1
		}
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" || containsString(specs[i].Patterns, p) {
				continue
			}
			specs[i].Patterns = append(specs[i].Patterns, p)
		}
	}

	names := make([]string, 0, len(fromConfig))
	for name := range fromConfig {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, fromConfig[name])
	}

	for _, f := range flags {
		spec, err := parseGroupFlag(f)
		if err != nil {
			return nil, err
		}
		add(spec.Name, spec.Patterns)
	}

	if len(positional) > 0 {
		add(defaultName, positional)
	}
	return specs, nil
}

// parseGroupFlag parses "name=pattern[,pattern...]".
func parseGroupFlag(value string) (GroupSpec, error) {
	name, rest, ok := strings.Cut(value, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return GroupSpec{}, fmt.Errorf("invalid group %q: want NAME=PATTERN[,PATTERN...]", value)
	}
	var patterns []string
	for _, p := range splitPatterns(rest) {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return GroupSpec{}, fmt.Errorf("invalid group %q: no patterns", value)
	}
	return GroupSpec{Name: name, Patterns: patterns}, nil
}

// splitPatterns splits on commas outside of {...} alternations, so that
// "a/*.xml,b/{x,y}.xml" yields two patterns.
func splitPatterns(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// defaultGroupName names the group formed by positional patterns after the
// repository being scanned.
func defaultGroupName(root, repo string) string {
	if repo != "" {
		p := repo
		if u, err := url.Parse(repo); err == nil && u.Path != "" {
			p = u.Path
		}
		if i := strings.LastIndex(p, ":"); i >= 0 {
			p = p[i+1:] // git@host:org/repo.git
		}
		if name := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), ".git"); name != "" && name != "." && name != "/" {
			return name
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		if base := filepath.Base(abs); base != string(filepath.Separator) && base != "." {
			return base
		}
	}
	return "all"
}

// normalizeKey turns a name into an environment-variable fragment: upper
// case, every run of characters outside [A-Z0-9] replaced by one '_', with
// no leading or trailing '_'.
func normalizeKey(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
