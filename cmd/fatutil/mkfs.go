package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/fat"
)

var mkfsCommand = &cli.Command{
	Name:      "mkfs",
	Usage:     "Create a fresh, empty FAT12/16/32 image file",
	ArgsUsage: "IMAGE",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "size", Usage: "image size, e.g. 16M, 2G", Value: "16M"},
		&cli.StringFlag{Name: "label", Usage: "volume label", Value: "FATFS"},
		&cli.UintFlag{Name: "sector-size", Usage: "bytes per sector", Value: defaultSectorSize},
		&cli.UintFlag{Name: "cluster-size", Usage: "sectors per cluster (0 picks automatically)"},
	},
	Action: runMkfs,
}

func runMkfs(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("mkfs requires an IMAGE argument", 1)
	}
	imagePath := c.Args().Get(0)

	totalBytes, err := humanize.ParseBytes(c.String("size"))
	if err != nil {
		return cli.Exit("invalid --size: "+err.Error(), 1)
	}

	bytesPerSector := uint16(c.Uint("sector-size"))
	sectorsPerCluster := uint8(c.Uint("cluster-size"))
	if sectorsPerCluster == 0 {
		sectorsPerCluster = pickSectorsPerCluster(totalBytes)
	}

	totalSectors := uint32(totalBytes / uint64(bytesPerSector))

	params, err := planGeometry(bytesPerSector, sectorsPerCluster, totalSectors, c.String("label"))
	if err != nil {
		return err
	}

	boot, err := bootsector.Format(params)
	if err != nil {
		return err
	}

	f, err := os.Create(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(totalSectors) * int64(bytesPerSector)); err != nil {
		return err
	}

	bootBytes, err := boot.Bytes()
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(bootBytes, 0); err != nil {
		return err
	}

	numEntries := int(boot.TotalClusters) + 2
	fatSize := int64(params.SectorsPerFAT) * int64(bytesPerSector)
	table := fat.Format(boot.Type, make([]byte, fatSize), numEntries, params.Media)

	fatOffset := int64(params.ReservedSectors) * int64(bytesPerSector)
	if boot.Type == bootsector.FAT32 {
		if err := table.SetEof(int(params.RootCluster)); err != nil {
			return err
		}

		fsInfo := bootsector.NewFSInfo()
		fsInfo.SetFreeClusterCount(uint32(table.GetFreeClusterCount()))
		fsInfoBytes, err := fsInfo.Bytes()
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(fsInfoBytes, int64(params.FSInfoSector)*int64(bytesPerSector)); err != nil {
			return err
		}
	}

	for i := uint8(0); i < params.NumFATs; i++ {
		if _, err := f.WriteAt(table.Bytes(), fatOffset+int64(i)*fatSize); err != nil {
			return err
		}
	}

	return f.Sync()
}

// pickSectorsPerCluster follows the conventional size-to-cluster-size table
// real FAT formatters use, favoring 4 KiB clusters once the volume is large
// enough that 512-byte clusters would waste excessive FAT space.
func pickSectorsPerCluster(totalBytes uint64) uint8 {
	const sectorSize = 512
	switch {
	case totalBytes < 16*humanize.MByte:
		return 1
	case totalBytes < 128*humanize.MByte:
		return 4096 / sectorSize
	case totalBytes < 512*humanize.MByte:
		return 8192 / sectorSize
	case totalBytes < 8*humanize.GByte:
		return 16384 / sectorSize
	default:
		return 32768 / sectorSize
	}
}

// planGeometry derives a self-consistent FormatParams for the requested
// size: it guesses a FAT flavor from the raw sector count, refines
// sectorsPerFAT to convergence for that flavor's entry width, then
// re-derives the actual flavor DetermineFatType would report and redoes the
// refinement once more if the guess was wrong.
func planGeometry(bytesPerSector uint16, sectorsPerCluster uint8, totalSectors uint32, label string) (bootsector.FormatParams, error) {
	flavor := bootsector.DetermineFatType(totalSectors / uint32(sectorsPerCluster))

	for attempt := 0; attempt < 2; attempt++ {
		rootEntryCount := uint16(512)
		reserved := uint16(1)
		if flavor == bootsector.FAT32 {
			rootEntryCount = 0
			reserved = 32
		}

		sectorsPerFAT := refineSectorsPerFAT(flavor, bytesPerSector, sectorsPerCluster, reserved, rootEntryCount, totalSectors)

		rootDirSectors := (uint32(rootEntryCount)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
		dataSectors := totalSectors - (uint32(reserved) + 2*sectorsPerFAT + rootDirSectors)
		totalClusters := dataSectors / uint32(sectorsPerCluster)
		actual := bootsector.DetermineFatType(totalClusters)

		if actual == flavor {
			return bootsector.FormatParams{
				BytesPerSector:    bytesPerSector,
				SectorsPerCluster: sectorsPerCluster,
				ReservedSectors:   reserved,
				NumFATs:           2,
				RootEntryCount:    rootEntryCount,
				TotalSectors:      totalSectors,
				SectorsPerFAT:     sectorsPerFAT,
				Media:             0xF8,
				VolumeLabel:       label,
				RootCluster:       2,
				FSInfoSector:      1,
				BackupBootSector:  6,
			}, nil
		}
		flavor = actual
	}

	return bootsector.FormatParams{}, cli.Exit("could not converge on a FAT geometry for the requested size", 1)
}

// refineSectorsPerFAT iterates the classic circular FAT-size formula
// (sectorsPerFAT depends on data-sector count, which depends on
// sectorsPerFAT) to a fixed point.
func refineSectorsPerFAT(flavor bootsector.FatType, bytesPerSector uint16, sectorsPerCluster uint8, reserved uint16, rootEntryCount uint16, totalSectors uint32) uint32 {
	rootDirSectors := (uint32(rootEntryCount)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
	entryBits := uint32(flavor.EntryBits())

	sectorsPerFAT := uint32(1)
	for i := 0; i < 8; i++ {
		dataSectors := totalSectors - (uint32(reserved) + 2*sectorsPerFAT + rootDirSectors)
		totalClusters := dataSectors / uint32(sectorsPerCluster)

		need := (uint64(totalClusters+2)*uint64(entryBits) + 7) / 8
		next := uint32((need + uint64(bytesPerSector) - 1) / uint64(bytesPerSector))
		if next < 1 {
			next = 1
		}
		if next == sectorsPerFAT {
			break
		}
		sectorsPerFAT = next
	}
	return sectorsPerFAT
}
