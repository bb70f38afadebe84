// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fij describes the binary interface of the fij kernel fault-injection driver
// and provides the single device operation used by campaigns.
//
// The record layouts mirror struct fij_params, struct fij_result and struct fij_exec
// from the driver's uapi header. Field order and widths must not change:
// the total size of ExecRequest is encoded into the ioctl command code.
package fij

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	DefaultDevice = "/dev/fij"

	// StringSize is the capacity of every string buffer in ParameterBlock,
	// including the terminating NUL.
	StringSize = 256
	MaxString  = StringSize - 1
)

// Register ids, must match enum fij_reg_id.
const (
	RegNone = iota
	RegRAX
	RegRBX
	RegRCX
	RegRDX
	RegRSI
	RegRDI
	RegRBP
	RegRSP
	RegRIP
)

var regNames = map[string]int32{
	"rax": RegRAX,
	"rbx": RegRBX,
	"rcx": RegRCX,
	"rdx": RegRDX,
	"rsi": RegRSI,
	"rdi": RegRDI,
	"rbp": RegRBP,
	"rsp": RegRSP,
	"pc":  RegRIP,
	"rip": RegRIP,
}

// RegID maps a case-insensitive register name to its driver id.
// Unknown names map to RegNone.
func RegID(name string) int32 {
	return regNames[strings.ToLower(strings.TrimSpace(name))]
}

// ParameterBlock is struct fij_params.
type ParameterBlock struct {
	ProcessName     [StringSize]byte
	ProcessPath     [StringSize]byte
	ProcessArgs     [StringSize]byte
	TargetPC        int32
	TargetPCPresent int32
	TargetReg       int32
	RegBit          int32
	RegBitPresent   int32
	WeightMem       int32
	OnlyMem         int32
	MinDelayMs      int32
	MaxDelayMs      int32
	ThreadPresent   int32
	Thread          int32
	AllThreads      int32
	NProcess        int32
	ProcessPresent  int32
	NoInjection     int32
}

// ResultBlock is struct fij_result. It is filled in by the driver.
type ResultBlock struct {
	Status        int32
	TargetTGID    int32
	FaultInjected int32
	DurationNs    uint64
	SeqNo         uint64
}

// ExecRequest is struct fij_exec: parameters in, result out.
// Go inserts the same alignment padding before Result as the C compiler does.
type ExecRequest struct {
	Params ParameterBlock
	Result ResultBlock
}

// SetString stores s into a fixed NUL-terminated buffer.
// Input longer than MaxString bytes is silently truncated, the rest of buf is zeroed.
func SetString(buf *[StringSize]byte, s string) {
	n := copy(buf[:MaxString], s)
	clear(buf[n:])
}

// String returns the contents of a fixed buffer up to the first NUL.
func String(buf []byte) string {
	if n := bytes.IndexByte(buf, 0); n != -1 {
		buf = buf[:n]
	}
	return strings.ToValidUTF8(string(buf), "")
}

func (p *ParameterBlock) Name() string { return String(p.ProcessName[:]) }
func (p *ParameterBlock) Path() string { return String(p.ProcessPath[:]) }
func (p *ParameterBlock) Args() string { return String(p.ProcessArgs[:]) }

func (p *ParameterBlock) SetName(s string) { SetString(&p.ProcessName, s) }
func (p *ParameterBlock) SetPath(s string) { SetString(&p.ProcessPath, s) }
func (p *ParameterBlock) SetArgs(s string) { SetString(&p.ProcessArgs, s) }

// Label is a human readable description of the target used in log messages.
func (p *ParameterBlock) Label() string {
	path, args := p.Path(), p.Args()
	switch {
	case path != "" && args != "":
		return path + " '" + args + "'"
	case path != "":
		return path
	}
	return "<unknown>"
}

// Normalize enforces the invariants the driver relies on: flags are 0 or 1,
// values gated by an absent _present flag are 0, reg_bit is within [0,63],
// the delay window is ordered and weight_mem is non-negative.
func (p *ParameterBlock) Normalize() {
	if p.Name() == "" && p.Path() != "" {
		p.SetName(filepath.Base(p.Path()))
	}
	p.OnlyMem = boolInt(p.OnlyMem != 0)
	p.AllThreads = boolInt(p.AllThreads != 0)
	p.NoInjection = boolInt(p.NoInjection != 0)
	p.ThreadPresent = boolInt(p.ThreadPresent != 0)
	p.ProcessPresent = boolInt(p.ProcessPresent != 0)
	p.TargetPCPresent = boolInt(p.TargetPCPresent != 0)
	p.RegBitPresent = boolInt(p.RegBitPresent != 0)
	if p.TargetReg < RegNone || p.TargetReg > RegRIP {
		p.TargetReg = RegNone
	}
	if p.ThreadPresent == 0 {
		p.Thread = 0
	}
	if p.ProcessPresent == 0 {
		p.NProcess = 0
	}
	if p.TargetPCPresent == 0 {
		p.TargetPC = 0
	}
	if p.RegBitPresent == 0 {
		p.RegBit = 0
	} else {
		p.RegBit = min(max(p.RegBit, 0), 63)
	}
	if p.MinDelayMs != 0 && p.MaxDelayMs != 0 && p.MaxDelayMs < p.MinDelayMs {
		p.MinDelayMs, p.MaxDelayMs = p.MaxDelayMs, p.MinDelayMs
	}
	p.WeightMem = max(p.WeightMem, 0)
}

func boolInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
