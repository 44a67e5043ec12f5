package assets

import (
	"os"
	"path/filepath"
	"strings"
)

type Kind uint8

const (
	KindNone Kind = iota
	// HLSL or GLSL text.
	KindShaderSource
	// Compiled SPIR-V.
	KindShaderBinary
)

func (k Kind) String() string {
	switch k {
	case KindShaderSource:
		return "shader-source"
	case KindShaderBinary:
		return "shader-binary"
	default:
		return "none"
	}
}

// Shader is the raw content of a shader file, compiling it is left to the
// pipeline builder.
type Shader struct {
	Name string
	Path string
	Kind Kind
	Data []byte
}

type Loader interface {
	Load(path string, kind Kind) (*Shader, error)
}

type fileLoader struct{}

func (fileLoader) Load(path string, kind Kind) (*Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Shader{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
		Kind: kind,
		Data: data,
	}, nil
}

func determineKind(path string) Kind {
	switch filepath.Ext(path) {
	case ".hlsl", ".glsl", ".vert", ".frag", ".comp":
		return KindShaderSource
	case ".spv":
		return KindShaderBinary
	default:
		return KindNone
	}
}
