package rv32

import (
	"fmt"

	"github.com/tinyrange/rv32ima/internal/fdt"
)

// GenerateDTB builds a minimal device tree describing this machine's
// fixed memory map and peripherals, for use in place of a prebuilt DTB
// file when -gen-dtb is passed.
func GenerateDTB(memSize uint32, bootargs string) ([]byte, error) {
	root := fdt.Node{
		Name: "",
		Properties: map[string]fdt.Property{
			"#address-cells": {U32: []uint32{1}},
			"#size-cells":    {U32: []uint32{1}},
			"compatible":     {Strings: []string{"rv32ima,machine"}},
			"model":          {Strings: []string{"rv32ima"}},
		},
		Children: []fdt.Node{
			{
				Name: "chosen",
				Properties: map[string]fdt.Property{
					"bootargs": {Strings: []string{bootargs}},
				},
			},
			{
				Name: fmt.Sprintf("memory@%x", ramBase),
				Properties: map[string]fdt.Property{
					"device_type": {Strings: []string{"memory"}},
					"reg":         {U32: []uint32{ramBase, memSize}},
				},
			},
			{
				Name: fmt.Sprintf("clint@%x", clintBase),
				Properties: map[string]fdt.Property{
					"compatible": {Strings: []string{"riscv,clint0"}},
					"reg":        {U32: []uint32{clintBase, clintSize}},
				},
			},
			{
				Name: fmt.Sprintf("uart@%x", uartBase),
				Properties: map[string]fdt.Property{
					"compatible": {Strings: []string{"ns16550a"}},
					"reg":        {U32: []uint32{uartBase, uartSize}},
				},
			},
			{
				Name: fmt.Sprintf("rtc@%x", rtcBase),
				Properties: map[string]fdt.Property{
					"compatible": {Strings: []string{"dallas,ds1742"}},
					"reg":        {U32: []uint32{rtcBase, rtcSize}},
				},
			},
		},
	}

	return fdt.Build(root)
}
