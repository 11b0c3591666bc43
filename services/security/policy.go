package security

// Policy is the two-sided import and call policy applied to generated code.
type Policy struct {
	// AllowedImports are the top-level modules generated code may import.
	AllowedImports []string `yaml:"allowed_imports"`

	// DeniedCalls are function names that may not be called or referenced,
	// whether bare (eval) or as the last segment of a call (x.eval).
	DeniedCalls []string `yaml:"denied_calls"`

	// DeniedModules may not appear anywhere in a called attribute chain.
	DeniedModules []string `yaml:"denied_modules"`

	// MaxComplexity is the ceiling on the branch/loop nesting score.
	MaxComplexity int `yaml:"max_complexity"`
}

// DefaultMaxComplexity is the complexity ceiling used when a policy sets none.
const DefaultMaxComplexity = 25

// DefaultPolicy allows the numeric stack, the strategy framework, the
// indicator library and a few pure standard-library modules.
func DefaultPolicy() Policy {
	return Policy{
		AllowedImports: []string{
			"numpy", "pandas", "talib", "quantflow",
			"math", "statistics", "datetime", "time", "collections",
		},
		DeniedCalls: []string{
			// dynamic evaluation and import
			"eval", "exec", "compile", "__import__",
			// reflection escapes
			"getattr", "setattr", "delattr", "globals", "locals", "vars",
			// raw I/O and interpreter control
			"open", "input", "breakpoint", "exit", "quit",
			// numpy file and pickle access
			"fromfile", "tofile", "load", "loads", "save", "savez", "savez_compressed",
			"loadtxt", "savetxt", "genfromtxt", "fromregex", "memmap", "open_memmap",
			"dump", "dumps", "DataSource",
			// pandas readers, which also fetch URLs
			"read_csv", "read_pickle", "read_sql", "read_sql_query", "read_sql_table",
			"read_json", "read_html", "read_parquet", "read_feather", "read_excel",
			"read_table", "read_fwf", "read_hdf", "read_xml", "read_clipboard",
			"read_orc", "read_sas", "read_spss", "read_stata", "read_gbq",
			"HDFStore", "ExcelWriter",
			// pandas writers
			"to_csv", "to_pickle", "to_sql", "to_json", "to_html", "to_parquet",
			"to_feather", "to_excel", "to_hdf", "to_xml", "to_clipboard", "to_orc",
			"to_stata", "to_gbq", "to_latex", "to_markdown", "to_string",
			// process and network access
			"system", "popen", "spawn", "urlopen",
		},
		DeniedModules: []string{
			"os", "sys", "subprocess", "shutil", "pathlib", "io", "builtins",
			"importlib", "pickle", "ctypes", "multiprocessing", "threading", "signal",
			"socket", "requests", "urllib", "http",
		},
		MaxComplexity: DefaultMaxComplexity,
	}
}

// WithAllowedImports returns a copy of p that also allows the given modules.
func (p Policy) WithAllowedImports(modules ...string) Policy {
	out := p
	out.AllowedImports = append(append([]string(nil), p.AllowedImports...), modules...)
	return out
}
