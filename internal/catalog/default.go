package catalog

import _ "embed"

//go:embed cjis_default.yaml
var defaultCatalogYAML []byte

// Default returns the embedded CJIS catalog. The embedded rules are
// validated at load like any external catalog; a panic here means the
// shipped catalog file is broken, which is a build defect.
func Default() *Catalog {
	cat, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic("embedded CJIS catalog is invalid: " + err.Error())
	}
	return cat
}
