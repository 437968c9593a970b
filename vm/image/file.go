package image

import (
	"fmt"
	"os"

	"github.com/chazu/kosvm/vm"
	"github.com/chazu/kosvm/vm/ops"
)

// Save writes program to path as an image.
func Save(path string, program vm.Program) error {
	img, err := FromProgram(program)
	if err != nil {
		return err
	}
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	return nil
}

// Load reads the image at path and rebuilds its program using reg.
func Load(path string, reg ops.Registry) (vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img.Program(reg)
}
