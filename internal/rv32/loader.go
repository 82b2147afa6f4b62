package rv32

import (
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// LoadRawImage copies the contents of path into RAM starting at physical
// address base, reporting progress on large images the way the teacher's
// image-copy paths do.
func (m *Machine) LoadRawImage(path string, base uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rv32: open raw image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("rv32: stat raw image: %w", err)
	}
	if base-ramBase+uint32(info.Size()) > uint32(len(m.Bus.RAM)) {
		return fmt.Errorf("rv32: raw image %s (%d bytes) exceeds RAM size", path, info.Size())
	}

	return m.copyIntoBus(f, info.Size(), base, fmt.Sprintf("loading %s", path))
}

// LoadDTB reads a prebuilt device-tree blob; the caller installs it at the
// fixed DTB window with AttachDTB.
func LoadDTB(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rv32: read dtb: %w", err)
	}
	return data, nil
}

// LoadMTD reads a flash/initrd image for the MTD window.
func LoadMTD(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rv32: read mtd image: %w", err)
	}
	return data, nil
}

// LoadELF loads an RV32 ELF image's PROGBITS sections into RAM at offset
// sh_addr & 0x7fffffff from the RAM base (so 0x80001000 lands at
// 0x80001000, and 0x00001000 also lands at 0x80001000, matching the
// source's guest-physical convention), using the standard library's ELF
// reader rather than a hand-rolled header parser.
func (m *Machine) LoadELF(path string) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("rv32: open elf: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return fmt.Errorf("rv32: elf image is not 32-bit")
	}

	bar := progressbar.DefaultBytes(-1, fmt.Sprintf("loading %s", path))
	defer bar.Close()

	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_PROGBITS || sec.Size == 0 {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("rv32: read elf section %s: %w", sec.Name, err)
		}
		phys := uint32(sec.Addr) & 0x7fffffff
		for i, b := range data {
			if err := m.Bus.Store(ramBase+phys+uint32(i), 1, uint32(b)); err != nil {
				return fmt.Errorf("rv32: copy elf section %s: %w", sec.Name, err)
			}
		}
		bar.Add(len(data))
	}

	m.Hart.PC = ramBase
	return nil
}

func (m *Machine) copyIntoBus(r io.Reader, size int64, base uint32, desc string) error {
	bar := progressbar.DefaultBytes(size, desc)
	defer bar.Close()

	buf := make([]byte, 64*1024)
	var off uint32
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				if serr := m.Bus.Store(base+off+uint32(i), 1, uint32(buf[i])); serr != nil {
					return fmt.Errorf("rv32: copy image: %w", serr)
				}
			}
			off += uint32(n)
			bar.Add(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rv32: read image: %w", err)
		}
	}
}
