package sandbox

import (
	_ "embed"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// propTypesSource evaluates to a function(module) that fills module.exports
// with a PropTypes object whose validators are plain descriptors:
//
//	PropTypes.oneOf(["a", "b"]).isRequired
//	// {type: {name: "enum", value: ["a", "b"]}, required: true}
//
//go:embed prop_types.js
var propTypesSource string

var propTypesProgram = goja.MustCompile("propspec:prop-types.js", propTypesSource, true)

// natives are the modules NativeAliases may point at.
var natives = map[string]require.ModuleLoader{
	PropTypesModule: loadPropTypes,
}

func loadPropTypes(vm *goja.Runtime, module *goja.Object) {
	fn, err := vm.RunProgram(propTypesProgram)
	if err != nil {
		panic(err)
	}
	setup, ok := goja.AssertFunction(fn)
	if !ok {
		panic(vm.NewGoError(fmt.Errorf("%s did not evaluate to a function", PropTypesModule)))
	}
	if _, err := setup(goja.Undefined(), module); err != nil {
		panic(err)
	}
}
