//go:build windows
// +build windows

// Package winjunction creates NTFS directory junctions as a fallback
// link strategy when a plain symlink cannot be created (typically
// because the process lacks SeCreateSymbolicLinkPrivilege). A junction
// is a reparse point the filesystem itself resolves, so it works
// without that privilege.
package winjunction

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"golang.org/x/sys/windows"

	"github.com/terrazul/tpm/pkg/tzerr"
)

const (
	fsctlSetReparsePoint   = 0x000900A4
	ioReparseTagMountPoint = 0xA0000003
	reparseHeaderSize      = 8 // ReparseTag + ReparseDataLength + Reserved
	mountPointHeaderSize   = 8 // the four USHORT offset/length fields
)

// Create makes link an NTFS junction pointing at target. link must not
// already exist; the caller removes any prior entry first.
func Create(target, link string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return tzerr.StorageErr(err, target)
	}
	substitute := `\??\` + abs
	if !strings.HasSuffix(substitute, `\`) {
		substitute += `\`
	}
	printName := abs
	if !strings.HasSuffix(printName, `\`) {
		printName += `\`
	}

	if err := os.Mkdir(link, 0o755); err != nil {
		return tzerr.StorageErr(err, link)
	}

	linkPtr, err := windows.UTF16PtrFromString(link)
	if err != nil {
		os.Remove(link)
		return tzerr.StorageErr(err, link)
	}
	handle, err := windows.CreateFile(
		linkPtr,
		windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		os.Remove(link)
		return tzerr.StorageErr(err, link)
	}
	defer windows.CloseHandle(handle)

	buf := buildReparseBuffer(substitute, printName)
	var bytesReturned uint32
	err = windows.DeviceIoControl(handle, fsctlSetReparsePoint, &buf[0], uint32(len(buf)), nil, 0, &bytesReturned, nil)
	if err != nil {
		os.Remove(link)
		return tzerr.StorageErr(err, link)
	}
	return nil
}

// buildReparseBuffer encodes a REPARSE_DATA_BUFFER in its
// MOUNT_POINT_REPARSE_BUFFER form: a header naming the reparse tag and
// payload length, four offset/length fields, then the substitute and
// print names back to back as null-terminated UTF-16.
func buildReparseBuffer(substitute, printName string) []byte {
	subUTF16 := utf16Bytes(substitute)
	printUTF16 := utf16Bytes(printName)

	pathBuffer := make([]byte, 0, len(subUTF16)+2+len(printUTF16)+2)
	pathBuffer = append(pathBuffer, subUTF16...)
	pathBuffer = append(pathBuffer, 0, 0) // substitute name null terminator
	pathBuffer = append(pathBuffer, printUTF16...)
	pathBuffer = append(pathBuffer, 0, 0) // print name null terminator

	dataLength := mountPointHeaderSize + len(pathBuffer)
	buf := make([]byte, reparseHeaderSize+dataLength)

	binary.LittleEndian.PutUint32(buf[0:4], ioReparseTagMountPoint)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(dataLength))
	binary.LittleEndian.PutUint16(buf[6:8], 0) // reserved

	binary.LittleEndian.PutUint16(buf[8:10], 0)                                    // SubstituteNameOffset
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(subUTF16)))               // SubstituteNameLength
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(subUTF16)+2))             // PrintNameOffset
	binary.LittleEndian.PutUint16(buf[14:16], uint16(len(printUTF16)))             // PrintNameLength

	copy(buf[reparseHeaderSize+mountPointHeaderSize:], pathBuffer)
	return buf
}

func utf16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}
