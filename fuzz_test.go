package fat32

import (
	"io"
	"testing"
)

// FuzzFS drives a small virtual machine of filesystem operations encoded
// in a uint64 stream, grounded in the teacher's own FuzzFS (fuzz_test.go):
// each operation packs an opcode, a target index, a permission, and a
// data size into one 64-bit word, exercising create/open/write/read/close
// across a handful of files without ever producing more data than the
// volume can hold.
func FuzzFS(f *testing.F) {
	const (
		opCreateFile uint64 = iota
		opOpenFile
		opWriteFile
		opReadFile
		opCloseFile

		datasizeOff = 48
		whoOff      = 4
	)
	type handle struct {
		file   *File
		name   string
		closed bool
	}
	genName := func(who uint8) string { return "/" + string(rune('a'+who%20)) }
	getWho := func(handles []handle, who uint8) *handle {
		if len(handles) == 0 {
			return nil
		}
		return &handles[int(who)%len(handles)]
	}

	writeData := make([]byte, 1<<12)
	for i := range writeData {
		writeData[i] = byte(i)
	}
	readData := make([]byte, 1<<12)

	f.Add(opCreateFile, opWriteFile|(500<<datasizeOff), opCloseFile,
		opOpenFile, opReadFile|(500<<datasizeOff),
		opOpenFile|(1<<whoOff), opWriteFile|(1<<whoOff)|(200<<datasizeOff), opCloseFile|(1<<whoOff),
	)

	const totalSectors = 0x4000

	f.Fuzz(func(t *testing.T, fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7 uint64) {
		fs, err := Format(newMemDevice(totalSectors), FormatConfig{
			SectorsPerCluster: 8,
			ReservedSectors:   32,
			TotalSectors:      totalSectors,
			FATSize:           64,
		})
		if err != nil {
			t.Fatal(err)
		}

		var handles []handle
		fsops := [...]uint64{fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7}
		totalWritten := 0
		for _, fsop := range fsops {
			op := fsop & 0x7
			who := uint8(fsop >> whoOff)
			mode := Mode(fsop>>8) & (ModeRead | ModeWrite)
			datasize := uint16(fsop >> datasizeOff)

			switch op {
			case opCreateFile:
				name := genName(who)
				file, err := fs.OpenFile(name, mode|ModeCreateAlways)
				if err != nil {
					continue
				}
				handles = append(handles, handle{file: file, name: name})

			case opOpenFile:
				h := getWho(handles, who)
				if h == nil || !h.closed {
					continue
				}
				file, err := fs.OpenFile(h.name, mode|ModeOpenExisting)
				if err != nil {
					continue
				}
				h.file = file
				h.closed = false

			case opCloseFile:
				h := getWho(handles, who)
				if h == nil || h.closed {
					continue
				}
				if err := h.file.Close(); err != nil {
					t.Fatalf("close: %v", err)
				}
				h.closed = true

			case opWriteFile:
				if totalWritten >= totalSectors*blockcacheSectorSize*4/5 {
					continue // don't run the volume out of space
				}
				h := getWho(handles, who)
				if h == nil || h.closed {
					continue
				}
				n, err := h.file.Write(writeData[:int(datasize)%len(writeData)])
				if h.file.mode&ModeWrite == 0 {
					if n != 0 {
						t.Fatal("wrote through a read-only handle")
					}
					continue
				}
				if err != nil {
					t.Fatalf("write: %v", err)
				}
				totalWritten += n

			case opReadFile:
				h := getWho(handles, who)
				if h == nil || h.closed {
					continue
				}
				_, err := h.file.Read(readData[:int(datasize)%len(readData)])
				if h.file.mode&ModeRead == 0 {
					continue
				}
				if err != nil && err != io.EOF {
					t.Fatalf("read: %v", err)
				}
			}
		}
	})
}
