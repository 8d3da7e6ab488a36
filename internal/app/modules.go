package app

import (
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/modules/env_vars"
	"github.com/vk/rulegraph/modules/exec"
	"github.com/vk/rulegraph/modules/fileset"
)

// coreModules are the rule modules every engine instance registers unless
// the caller supplies its own set.
var coreModules = []registry.Module{
	&fileset.Module{},
	&exec.Module{},
	&env_vars.Module{},
}
