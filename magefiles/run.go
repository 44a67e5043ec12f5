//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with luminax.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs a bounded number of frames on the in-memory backend.
func (Run) Headless() error {
	fmt.Println("Run engine headless...")
	if _, err := executeCmd("go", withArgs("run", ".", "-backend", "headless", "-frames", "300"), withStream()); err != nil {
		return err
	}
	return nil
}
