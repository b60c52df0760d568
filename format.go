package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/nilfs-go/fat32/internal/ondisk"
)

// FormatConfig parameterizes Format. Zero-value fields take the defaults
// noted per-field, matching a typical mkfs.fat32 invocation: all you
// must supply is the device's total sector count (or a SizedBlockDevice
// that can report it).
type FormatConfig struct {
	VolumeLabel       string // up to 11 characters; default "NO NAME"
	SectorsPerCluster uint8  // must be a power of two; default chosen from TotalSectors
	ReservedSectors   uint16 // default 32
	TotalSectors      uint32 // required unless device is a SizedBlockDevice
	FATSize           uint32 // sectors per FAT copy; 0 derives it by fixed-point search
}

// defaultSectorsPerCluster picks a FAT32-appropriate cluster size from
// Microsoft's published volume-size table, the same bracketing the
// teacher's init_fat performs on mount (clustMaxFAT16/32 thresholds),
// applied here in reverse to choose rather than merely validate.
func defaultSectorsPerCluster(totalSectors uint32) uint8 {
	sizeMB := uint64(totalSectors) * blockcacheSectorSize / (1 << 20)
	switch {
	case sizeMB < 8*1024:
		return 8
	case sizeMB < 16*1024:
		return 16
	case sizeMB < 32*1024:
		return 32
	default:
		return 64
	}
}

// Format writes a fresh FAT32 volume to device: boot sector, FSInfo, two
// FAT copies (reserved entries 0/1 plus the root directory's EOC marker),
// and a zeroed root directory cluster. It then mounts the freshly
// written volume and returns the resulting *FS.
func Format(device BlockDevice, cfg FormatConfig) (*FS, error) {
	total := cfg.TotalSectors
	if total == 0 {
		sized, ok := device.(SizedBlockDevice)
		if !ok {
			return nil, fmt.Errorf("%w: TotalSectors required for a device that cannot report its own size", ErrInvalidName)
		}
		total = uint32(sized.Size() / blockcacheSectorSize)
	}
	spc := cfg.SectorsPerCluster
	if spc == 0 {
		spc = defaultSectorsPerCluster(total)
	}
	if spc == 0 || (spc&(spc-1)) != 0 {
		return nil, fmt.Errorf("%w: sectors-per-cluster must be a power of two", ErrInvalidName)
	}
	rsvd := cfg.ReservedSectors
	if rsvd == 0 {
		rsvd = 32
	}
	const numFATs = 2

	fatSize := cfg.FATSize
	var dataClusters uint32
	if fatSize != 0 {
		nonData := uint32(rsvd) + numFATs*fatSize
		if total <= nonData {
			return nil, fmt.Errorf("%w: volume too small for requested geometry", ErrInvalidName)
		}
		dataClusters = (total - nonData) / uint32(spc)
	} else {
		// Fixed-point search for the FAT size (in sectors) that exactly
		// covers the data region it itself carves out of the volume.
		fatSize = 1
		for i := 0; i < 16; i++ {
			nonData := uint32(rsvd) + numFATs*fatSize
			if total <= nonData {
				return nil, fmt.Errorf("%w: volume too small for requested geometry", ErrInvalidName)
			}
			dataClusters = (total - nonData) / uint32(spc)
			need := (dataClusters + 2) * 4
			newFATSize := (need + blockcacheSectorSize - 1) / blockcacheSectorSize
			if newFATSize == fatSize {
				break
			}
			fatSize = newFATSize
		}
	}
	if dataClusters < 2 {
		return nil, fmt.Errorf("%w: volume too small to hold a root directory", ErrInvalidName)
	}

	rootCluster := uint32(2)
	fsInfoSector := uint16(1)

	bpb := ondisk.BootSector{
		OEMName:       [8]byte{'N', 'I', 'L', 'F', 'S', ' ', ' ', ' '},
		BytsPerSec:    blockcacheSectorSize,
		SecPerClus:    spc,
		RsvdSecCnt:    rsvd,
		NumFATs:       numFATs,
		Media:         0xF8,
		TotSec32:      total,
		FATSz32:       fatSize,
		RootClus:      rootCluster,
		FSInfoSec:     fsInfoSector,
		BkBootSec:     6,
		DrvNum:        0x80,
		BootSig:       0x29,
		VolID:         volumeSerial(),
		SignatureWord: ondisk.BootSig,
	}
	copy(bpb.JmpBoot[:], []byte{0xEB, 0x58, 0x90})
	copy(bpb.FilSysType[:], "FAT32   ")
	setVolumeLabel(&bpb.VolLab, cfg.VolumeLabel)

	raw, err := bpb.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := device.WriteBlocks(raw, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if _, err := device.WriteBlocks(raw, int64(bpb.BkBootSec)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	fsinfo := ondisk.FSInfo{
		LeadSig:   ondisk.FSInfoLeadSig,
		StrucSig:  ondisk.FSInfoStrucSig,
		FreeCount: dataClusters - 1,
		NextFree:  rootCluster + 1,
		TrailSig:  ondisk.FSInfoTrailSig,
	}
	fsinfoRaw, err := fsinfo.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := device.WriteBlocks(fsinfoRaw, int64(fsInfoSector)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if _, err := device.WriteBlocks(fsinfoRaw, int64(bpb.BkBootSec)+int64(fsInfoSector)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	if err := writeInitialFATs(device, int64(rsvd), fatSize, rootCluster); err != nil {
		return nil, err
	}

	firstDataSector := uint32(rsvd) + numFATs*fatSize
	rootSector := int64(firstDataSector)
	var zero [blockcacheSectorSize]byte
	for i := uint8(0); i < spc; i++ {
		if _, err := device.WriteBlocks(zero[:], rootSector+int64(i)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDevice, err)
		}
	}

	fs := &FS{}
	if err := fs.Mount(device, blockcacheSectorSize, ModeRW); err != nil {
		return nil, err
	}
	return fs, nil
}

// writeInitialFATs writes the two reserved FAT entries (0 holding the
// media descriptor in its low byte plus the EOC marker pattern, 1
// holding the EOC marker) and the root directory's own EOC entry,
// identically to both FAT copies, zeroing the rest.
func writeInitialFATs(device BlockDevice, fat1Sector int64, fatSize, rootCluster uint32) error {
	var sector [blockcacheSectorSize]byte
	binary.LittleEndian.PutUint32(sector[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(sector[4:8], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(sector[8:12], ondisk.ClusterEOCMin)

	fat2Sector := fat1Sector + int64(fatSize)
	for _, base := range []int64{fat1Sector, fat2Sector} {
		if _, err := device.WriteBlocks(sector[:], base); err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
		var zero [blockcacheSectorSize]byte
		for i := int64(1); i < int64(fatSize); i++ {
			if _, err := device.WriteBlocks(zero[:], base+i); err != nil {
				return fmt.Errorf("%w: %v", ErrDevice, err)
			}
		}
	}
	_ = rootCluster
	return nil
}

func volumeSerial() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}

func setVolumeLabel(dst *[11]byte, label string) {
	for i := range dst {
		dst[i] = ' '
	}
	if label == "" {
		copy(dst[:], "NO NAME")
		return
	}
	upper := upperCaser.String(label)
	n := len(upper)
	if n > 11 {
		n = 11
	}
	copy(dst[:], upper[:n])
}
