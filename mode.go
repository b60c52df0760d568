package fat32

// Mode is an open-mode bit flag set, mirroring the teacher's exported.go
// Mode type and constant names.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeCreate       // create the file; ErrExist if it already exists (unless ModeOpenExisting)
	ModeCreateAlways // always create, truncating an existing file
	ModeOpenExisting // with ModeCreate, open an existing file instead of failing with ErrExist
	ModeAppend

	ModeRW = ModeRead | ModeWrite
)
