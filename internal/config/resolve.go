package config

// ResolveOptions names the sources merged by Resolve. Empty paths are
// skipped.
type ResolveOptions struct {
	EnvPrefix  string
	JSONPath   string
	YAMLPath   string
	INIPath    string
	INISection string
	DotenvPath string
}

// Resolve merges every source in increasing priority: INI, dotenv, YAML,
// JSON, then the environment. The result may be incomplete; use
// Fragment.Settings to validate it.
func (l *Loader) Resolve(opts ResolveOptions) Fragment {
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var merged Fragment
	if opts.INIPath != "" {
		merged = merged.Merge(l.LoadFromINI(opts.INIPath, opts.INISection))
	}
	if opts.DotenvPath != "" {
		merged = merged.Merge(l.LoadFromDotenv(opts.DotenvPath, prefix))
	}
	if opts.YAMLPath != "" {
		merged = merged.Merge(l.LoadFromYAML(opts.YAMLPath))
	}
	if opts.JSONPath != "" {
		merged = merged.Merge(l.LoadFromJSON(opts.JSONPath))
	}
	return merged.Merge(l.LoadFromEnvironment(prefix))
}

// Resolve merges the sources named by opts using the process environment
// and the OS filesystem.
func Resolve(opts ResolveOptions) Fragment {
	return NewLoader().Resolve(opts)
}
