// Package march implements the GPU marching cubes pipeline: the packed
// triangle configuration table, the three compute kernels (extract,
// resolve, tail-clear) and the dispatcher that encodes them.
package march

import (
	_ "embed"
)

// Embedded WGSL shader sources.
// These are compiled at build time using go:embed directives.

//go:embed shaders/extract.wgsl
var extractShaderSource string

//go:embed shaders/resolve.wgsl
var resolveShaderSource string

//go:embed shaders/clear.wgsl
var clearShaderSource string

// GetExtractShaderSource returns the WGSL source for the extraction kernel.
func GetExtractShaderSource() string {
	return extractShaderSource
}

// GetResolveShaderSource returns the WGSL source for the resolver kernel.
func GetResolveShaderSource() string {
	return resolveShaderSource
}

// GetClearShaderSource returns the WGSL source for the tail-clear kernel.
func GetClearShaderSource() string {
	return clearShaderSource
}

// ShaderSources returns all kernel sources keyed by stage name. Useful
// for tooling and offline validation.
func ShaderSources() map[string]string {
	return map[string]string{
		"extract": extractShaderSource,
		"resolve": resolveShaderSource,
		"clear":   clearShaderSource,
	}
}
