package kokia

import (
	"runtime/debug"
	"strings"
)

// Version is set automatically from the semantic version tag of the
// `kokia` module that was actually linked in, so there's nothing to
// bump by hand when we cut a tag. Defaults to the unset marker when
// not consumed as a module, e.g. in local unit tests.
var Version string = "v0.0.0-unset"

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		for k := range bi.Deps {
			p := bi.Deps[k].Path
			if strings.Contains(p, "kokia") {
				Version = bi.Deps[k].Version
				return
			}
		}
	}
}
