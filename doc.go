// Package fat32 is a read/write FAT32 filesystem implementation over an
// abstract block device.
//
// It owns no global state: every mounted volume is its own *FS, holding
// its own block cache and FAT manager, so multiple volumes can be
// mounted concurrently in one process. Call Format to initialize a blank
// device, or construct a zero-value FS and call Mount to attach to an
// already-formatted one. FindVolume locates a FAT32 partition on a
// whole-disk image (GPT or legacy MBR) before either call.
//
// There is no relative-path support built in: OpenFile, OpenDir, Mkdir,
// and Remove all take slash-separated paths resolved from the volume
// root. Wrap an *FS in an io/fs-style adapter at the call site if
// relative-path semantics are needed; the core stays small and testable
// without reimplementing path-joining rules the standard library
// already gets right.
package fat32
