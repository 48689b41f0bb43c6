// Package blockfile implements opcode 22's block-save: dumping a range of
// the VM's core to a file in the same little-endian cell format as a full
// image (spec §4.3, §6).
package blockfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/bassosimone/embed16/pkg/core"
)

// ErrBlockRangeInvalid indicates that start+length overflows the 16-bit
// address space Save writes into.
var ErrBlockRangeInvalid = errors.New("blockfile: range invalid")

// ErrBlockPathEmpty indicates that SaveToPath was asked to save with no
// configured destination path.
var ErrBlockPathEmpty = errors.New("blockfile: path empty")

// Reader is the subset of core.Core that Save needs: indexed cell reads.
// Accepting an interface here (rather than *core.Core) keeps this package
// from importing the VM's execution state, matching the teacher's habit
// of depending only on the narrow surface a component actually uses.
type Reader interface {
	Read(addr uint16) uint16
}

var _ Reader = (*core.Core)(nil)

// Save writes the cells from start up to, but not including, length to w,
// two bytes little-endian per cell. It reproduces the reference's start..length loop exactly: length
// is an end index, not a count, so length <= start writes zero cells and
// still succeeds. This is an Open Question the spec says to mirror rather
// than "fix" -- see DESIGN.md.
//
// Save returns ErrBlockRangeInvalid if start+length would overflow 0xFFFF,
// or the underlying write error if a write to w fails.
func Save(w io.Writer, c Reader, start, length uint32) error {
	if start+length > 0xFFFF {
		return fmt.Errorf("%w: start=%#x length=%#x", ErrBlockRangeInvalid, start, length)
	}
	var b [2]byte
	for addr := start; addr < length; addr++ {
		binary.LittleEndian.PutUint16(b[:], c.Read(uint16(addr)))
		if _, err := w.Write(b[:]); err != nil {
			return fmt.Errorf("blockfile: write failed: %w", err)
		}
	}
	return nil
}

// SaveToPath opens path for writing and calls Save, logging any failure
// via log (spec §7's "diagnostic to stderr"). It returns 0xFFFF if path
// is empty, the file cannot be created, or the write fails; 0 on success,
// matching opcode 22's cell-level success/failure contract.
func SaveToPath(log *zap.Logger, path string, c Reader, start, length uint32) uint16 {
	if path == "" {
		log.Error("block save: no path configured", zap.Error(ErrBlockPathEmpty))
		return 0xFFFF
	}
	f, err := os.Create(path)
	if err != nil {
		log.Error("block save: cannot create file", zap.String("path", path), zap.Error(err))
		return 0xFFFF
	}
	defer f.Close()
	if err := Save(f, c, start, length); err != nil {
		log.Error("block save: range or write failure",
			zap.String("path", path), zap.Uint32("start", start), zap.Uint32("length", length),
			zap.Error(err))
		return 0xFFFF
	}
	return 0
}
