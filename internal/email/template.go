package email

import (
	"sort"
	"strings"
)

// Render replaces every "{key}" in tmpl with vars[key]. Substitution is a
// single literal pass: placeholders without a variable are left as they are,
// variables without a placeholder are ignored, and substituted values are
// never rescanned.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
