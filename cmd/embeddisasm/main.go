// Command embeddisasm prints one mnemonic line per cell of an embed VM
// image. It is a read-only development aid, not part of the execution
// path -- the inverse of bassosimone-risc32/pkg/asm's encoder, adapted to
// the embed ISA.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/bassosimone/embed16/pkg/disasm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: embeddisasm <image>")
		return 2
	}
	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer f.Close()

	w := bufio.NewWriter(stdout)
	defer w.Flush()

	var pair [2]byte
	for addr := 0; ; addr++ {
		if _, err := io.ReadFull(f, pair[:]); err != nil {
			break
		}
		inst := binary.LittleEndian.Uint16(pair[:])
		fmt.Fprintf(w, "%04x: %04x  %s\n", addr, inst, disasm.One(inst))
	}
	return 0
}
