//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"

	"github.com/spaghettifunk/decimator/testbed"
)

type Run mg.Namespace

const sampleRoot = "sample"

// Generates sample/in with two spheres and a text file, then decimates it into sample/out.
func (Run) Sample() error {
	in := filepath.Join(sampleRoot, "in")
	out := filepath.Join(sampleRoot, "out")
	if err := os.RemoveAll(sampleRoot); err != nil {
		return err
	}
	if err := testbed.WriteSampleTree(in); err != nil {
		return fmt.Errorf("failed to write sample tree: %w", err)
	}
	fmt.Println("Run decimator...")
	if _, err := executeCmd("go", withArgs("run", "main.go", "--ratio", "0.3", "--log-level", "debug", in, out), withStream()); err != nil {
		return err
	}
	return nil
}
