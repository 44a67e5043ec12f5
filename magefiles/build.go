//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL source below assets/shaders into SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "luminax"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No shaders to compile.")
			return nil
		}
		return err
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".vert" && ext != ".frag") {
			continue
		}
		// color.vert -> color.vert.spv
		if _, err := executeCmd("glslc", withArgs(e.Name(), "-o", e.Name()+".spv"), withDir(shaderDir), withStream()); err != nil {
			return fmt.Errorf("compiling %s: %w", e.Name(), err)
		}
	}
	return nil
}
