// Package deps statically resolves Python import statements to installable
// package requirements. Resolution is a text scan, not an AST walk: the goal
// is to catch the common "import pandas" / "from sklearn import ..." shapes
// the oracle emits, map divergent import names to their PyPI package names,
// and skip the standard library.
package deps

import (
	"regexp"
	"sort"
	"strings"
)

// Requirement is a normalized package requirement inferred from source code.
type Requirement struct {
	// Import is the top-level module name as it appears in the code.
	Import string

	// Package is the installable (PyPI) package name. Equal to Import
	// unless the name diverges (e.g., cv2 -> opencv-python).
	Package string
}

// importPattern matches "import x", "import x as y", "import x.y.z",
// and "from x import y" at the start of a line.
var importPattern = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// packageNames maps import names to PyPI package names where they diverge.
// Unknown imports pass through unchanged.
var packageNames = map[string]string{
	"sklearn":  "scikit-learn",
	"cv2":      "opencv-python",
	"PIL":      "pillow",
	"bs4":      "beautifulsoup4",
	"yaml":     "pyyaml",
	"dateutil": "python-dateutil",
	"dotenv":   "python-dotenv",
	"Crypto":   "pycryptodome",
	"OpenSSL":  "pyopenssl",
	"fitz":     "pymupdf",
	"mpl_toolkits": "matplotlib",
}

// stdlib lists standard-library and interpreter-builtin module names that
// must never produce an install request. Not exhaustive; covers what
// generated analysis code actually imports.
var stdlib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "asyncio": true,
	"base64": true, "bisect": true, "builtins": true, "calendar": true,
	"collections": true, "concurrent": true, "contextlib": true, "copy": true,
	"csv": true, "ctypes": true, "dataclasses": true, "datetime": true,
	"decimal": true, "difflib": true, "enum": true, "functools": true,
	"glob": true, "gzip": true, "hashlib": true, "heapq": true, "hmac": true,
	"html": true, "http": true, "importlib": true, "inspect": true,
	"io": true, "itertools": true, "json": true, "logging": true,
	"math": true, "mimetypes": true, "multiprocessing": true, "operator": true,
	"os": true, "pathlib": true, "pickle": true, "platform": true,
	"pprint": true, "queue": true, "random": true, "re": true,
	"secrets": true, "shutil": true, "signal": true, "socket": true,
	"sqlite3": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tempfile": true, "textwrap": true,
	"threading": true, "time": true, "traceback": true, "types": true,
	"typing": true, "unicodedata": true, "unittest": true, "urllib": true,
	"uuid": true, "warnings": true, "xml": true, "zipfile": true, "zlib": true,
}

// Resolve scans code for import statements and returns the deduplicated,
// sorted set of package requirements. Standard-library imports are skipped;
// unknown third-party names pass through with Package == Import.
func Resolve(code string) []Requirement {
	matches := importPattern.FindAllStringSubmatch(code, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var reqs []Requirement
	for _, m := range matches {
		name := m[1]
		if stdlib[name] || seen[name] {
			continue
		}
		seen[name] = true

		pkg := name
		if mapped, ok := packageNames[name]; ok {
			pkg = mapped
		}
		reqs = append(reqs, Requirement{Import: name, Package: pkg})
	}

	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Package < reqs[j].Package })
	return reqs
}

// PackageName maps a bare import or package name to its installable name.
// Used by the install_package tool so "sklearn" and "scikit-learn" install
// the same thing.
func PackageName(name string) string {
	name = strings.TrimSpace(name)
	if mapped, ok := packageNames[name]; ok {
		return mapped
	}
	return name
}
