// Copyright 2025 fij project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fij

import (
	"fmt"
	"unsafe"
)

// Generic Linux ioctl request encoding, see include/uapi/asm-generic/ioctl.h.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocSizeMask = 1<<iocSizeBits - 1
)

// Direction of an ioctl data transfer as seen from user space.
type Direction uint32

const (
	IocNone      Direction = 0
	IocWrite     Direction = 1
	IocRead      Direction = 2
	IocReadWrite Direction = IocRead | IocWrite
)

// EncodeCommand packs an ioctl request number the way _IOC does.
// It panics if size does not fit into the 14-bit size field:
// payload sizes are fixed by the ABI, so this is a programming error.
func EncodeCommand(dir Direction, typ byte, nr uint8, size uintptr) uint32 {
	if size > iocSizeMask {
		panic(fmt.Sprintf("ioctl payload size %v does not fit into %v bits", size, iocSizeBits))
	}
	if dir>>iocDirBits != 0 {
		panic(fmt.Sprintf("bad ioctl direction %v", dir))
	}
	return uint32(dir)<<iocDirShift |
		uint32(size)<<iocSizeShift |
		uint32(typ)<<iocTypeShift |
		uint32(nr)<<iocNrShift
}

// IoctlExecAndFault is _IOWR('f', 2, struct fij_exec).
// The driver copies ExecRequest in, runs the target and writes Result back.
var IoctlExecAndFault = EncodeCommand(IocReadWrite, 'f', 2, unsafe.Sizeof(ExecRequest{}))
