// Package image stores compiled kosvm programs on disk. An image is the
// opcode list of one compiled file, CBOR encoded in canonical form and
// sealed with a content hash, so the host can run precompiled scripts
// without a compiler.
package image

import (
	"fmt"

	"github.com/chazu/kosvm/vm"
	"github.com/chazu/kosvm/vm/ops"
)

// Magic identifies a kosvm image.
const Magic = "KOSVM"

// Version is the image layout version written by this package.
const Version = 1

// Image is one compiled file.
type Image struct {
	Magic   string   `cbor:"1,keyasint"`
	Version uint8    `cbor:"2,keyasint"`
	Hash    [32]byte `cbor:"3,keyasint"` // sha256 of the encoded Ops
	Ops     []Op     `cbor:"4,keyasint"`
}

// Op is one opcode: its registry name, the operands that rebuild it, and
// its label and source tag.
type Op struct {
	Name   string `cbor:"1,keyasint"`
	Args   []any  `cbor:"2,keyasint,omitempty"`
	Label  string `cbor:"3,keyasint,omitempty"`
	Path   string `cbor:"4,keyasint,omitempty"`
	Line   int    `cbor:"5,keyasint,omitempty"`
	Column int    `cbor:"6,keyasint,omitempty"`
}

// tagged is implemented by every opcode embedding vm.OpcodeBase.
type tagged interface {
	SetLabel(label string)
	SetSource(location vm.SourceLocation)
}

// FromProgram describes program as an image. Every opcode must belong to
// the ops package.
func FromProgram(program vm.Program) (*Image, error) {
	img := &Image{Magic: Magic, Version: Version, Ops: make([]Op, 0, len(program))}
	for ip, op := range program {
		name, args, err := ops.Describe(op)
		if err != nil {
			return nil, fmt.Errorf("image: opcode %d: %w", ip, err)
		}
		loc := op.Source()
		img.Ops = append(img.Ops, Op{
			Name:   name,
			Args:   args,
			Label:  op.Label(),
			Path:   loc.Path,
			Line:   loc.Line,
			Column: loc.Column,
		})
	}
	return img, nil
}

// Program rebuilds the opcodes using reg.
func (img *Image) Program(reg ops.Registry) (vm.Program, error) {
	program := make(vm.Program, 0, len(img.Ops))
	for ip, o := range img.Ops {
		op, err := reg.New(o.Name, o.Args)
		if err != nil {
			return nil, fmt.Errorf("image: opcode %d: %w", ip, err)
		}
		if t, ok := op.(tagged); ok {
			t.SetLabel(o.Label)
			t.SetSource(vm.SourceLocation{Path: o.Path, Line: o.Line, Column: o.Column})
		}
		program = append(program, op)
	}
	return program, nil
}
