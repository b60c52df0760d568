package fat32

import (
	"fmt"
	"io"
)

func ExampleFS_basicUsage() {
	device := newMemDevice(0x4000)
	fs, err := Format(device, FormatConfig{
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		TotalSectors:      0x4000,
		FATSize:           64,
	})
	if err != nil {
		panic(err)
	}

	file, err := fs.OpenFile("/newfile.txt", ModeCreateAlways|ModeWrite)
	if err != nil {
		panic(err)
	}
	if _, err := file.Write([]byte("Hello, World!")); err != nil {
		panic(err)
	}
	if err := file.Close(); err != nil {
		panic(err)
	}

	file, err = fs.OpenFile("/newfile.txt", ModeRead)
	if err != nil {
		panic(err)
	}
	data, err := io.ReadAll(readerFunc(file.Read))
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
	file.Close()
	// Output:
	// Hello, World!
}

// readerFunc adapts a Read method value to io.Reader for io.ReadAll.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
