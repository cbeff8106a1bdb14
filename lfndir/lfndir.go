// Package lfndir implements the FAT long-file-name directory façade that
// ties together short names, LFN slots, and the abstract directory vector
// into name-based add/remove/lookup/move operations.
package lfndir

import (
	"strings"
	"time"

	"github.com/gofatfs/fatfs/clusterchain"
	"github.com/gofatfs/fatfs/dirent"
	"github.com/gofatfs/fatfs/directory"
	fatErrors "github.com/gofatfs/fatfs/errors"
	"github.com/gofatfs/fatfs/fat"
	"github.com/gofatfs/fatfs/fatfile"

	"github.com/hashicorp/go-multierror"
)

// Device is the narrow block-device contract this façade's children need.
type Device interface {
	clusterchain.Reader
	clusterchain.Writer
}

// record is one directory entry as seen by the façade: its decoded entry,
// its long name if it has one, and the raw on-disk slots (LFN extensions
// plus the trailing real entry) backing it. Once unlinked from its
// directory's indexes (by Remove), it is marked invalid; any handle still
// holding it must reject further operations.
type record struct {
	entry    dirent.Entry
	longName string
	slots    [][]byte
	invalid  bool
}

func (r *record) Get() dirent.Entry { return r.entry }

func (r *record) Set(e dirent.Entry) {
	r.entry = e
	if raw, err := e.ToBytes(); err == nil {
		r.slots[len(r.slots)-1] = raw
	}
}

func (r *record) Invalid() bool { return r.invalid }

func (r *record) displayName() string {
	if r.longName != "" {
		return r.longName
	}
	return r.entry.ShortName.AsSimpleString()
}

// FatLfnDirectory is the directory façade: name uniqueness, short/long name
// indexes, identity caches for opened files and subdirectories, and the
// recursive flush that rebuilds the on-disk form.
type FatLfnDirectory struct {
	storage               *directory.AbstractDirectory
	table                 *fat.FAT
	device                Device
	clusterSize           int
	filesOffset           int64
	gen                   *dirent.Generator
	parentStorageCluster  int
	isRoot                bool
	readOnly              bool

	// closed is the filesystem-wide closed flag, shared by pointer with
	// every directory and file reachable from the same root; Close()
	// sets it once and every handle below it starts rejecting operations.
	closed *bool
	// selfRecord is the record in the parent directory's index that
	// represents this directory, or nil for a filesystem root. Checked
	// alongside closed so a directory whose own entry was removed from
	// its parent (or moved into a new one, which reuses the same record)
	// also rejects further operations.
	selfRecord *record

	dotSlots [][]byte

	shortNameIndex map[dirent.ShortName]*record
	longNameIndex  map[string]*record
	order          []*record

	entryToFile      map[*record]*fatfile.FatFile
	entryToDirectory map[*record]*FatLfnDirectory

	now func() time.Time
}

// Open parses an already-populated AbstractDirectory (call storage.Read()
// first) into a façade. parentStorageCluster is the parent directory's own
// start cluster (0 if the parent is a root); isRoot marks this directory as
// a filesystem root, which has no "." / ".." of its own. closed is the
// filesystem-wide closed flag shared with every other object opened from
// the same root.
func Open(
	storage *directory.AbstractDirectory,
	table *fat.FAT,
	device Device,
	clusterSize int,
	filesOffset int64,
	gen *dirent.Generator,
	parentStorageCluster int,
	isRoot bool,
	readOnly bool,
	closed *bool,
) (*FatLfnDirectory, error) {
	d := &FatLfnDirectory{
		storage:              storage,
		table:                table,
		device:               device,
		clusterSize:          clusterSize,
		filesOffset:          filesOffset,
		gen:                  gen,
		parentStorageCluster: parentStorageCluster,
		isRoot:               isRoot,
		readOnly:             readOnly,
		closed:               closed,
		shortNameIndex:       make(map[dirent.ShortName]*record),
		longNameIndex:        make(map[string]*record),
		entryToFile:          make(map[*record]*fatfile.FatFile),
		entryToDirectory:     make(map[*record]*FatLfnDirectory),
		now:                  time.Now,
	}

	if err := d.parse(); err != nil {
		return nil, err
	}
	return d, nil
}

// checkValid fails with ErrAlreadyClosed once the owning filesystem has
// been closed, or with ErrAlreadyInvalid once this directory's own entry
// has been unlinked from its parent (by a Remove there).
func (d *FatLfnDirectory) checkValid() error {
	if d.closed != nil && *d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if d.selfRecord != nil && d.selfRecord.invalid {
		return fatErrors.ErrAlreadyInvalid
	}
	return nil
}

func (d *FatLfnDirectory) parse() error {
	slots := d.storage.Slots()
	i := 0
	for i < len(slots) {
		if dirent.IsLFNAttr(slots[i][11]) {
			var lfnRaw [][]byte
			for i < len(slots) && dirent.IsLFNAttr(slots[i][11]) {
				lfnRaw = append(lfnRaw, slots[i])
				i++
			}
			if i >= len(slots) {
				return fatErrors.ErrCorruptVolume.WithMessage("LFN sequence has no trailing real entry")
			}
			realSlot := slots[i]
			entry, ok, isEnd, err := dirent.ParseEntry(realSlot)
			if err != nil {
				return err
			}
			if isEnd || !ok {
				return fatErrors.ErrCorruptVolume.WithMessage("LFN sequence followed by a non-entry slot")
			}

			lfnSlots := make([]dirent.LFNSlot, len(lfnRaw))
			for j, b := range lfnRaw {
				lfnSlots[j] = dirent.ParseLFNSlot(b)
			}
			name, err := dirent.DecodeLFN(lfnSlots)
			if err != nil {
				return err
			}

			all := make([][]byte, 0, len(lfnRaw)+1)
			all = append(all, lfnRaw...)
			all = append(all, realSlot)

			rec := &record{entry: entry, longName: name, slots: all}
			d.insert(rec)
			i++
			continue
		}

		entry, ok, isEnd, err := dirent.ParseEntry(slots[i])
		if err != nil {
			return err
		}
		if isEnd || !ok {
			i++
			continue
		}

		if entry.ShortName == dirent.Dot || entry.ShortName == dirent.DotDot {
			d.dotSlots = append(d.dotSlots, slots[i])
			i++
			continue
		}

		rec := &record{entry: entry, slots: [][]byte{slots[i]}}
		d.insert(rec)
		i++
	}
	return nil
}

func (d *FatLfnDirectory) insert(rec *record) {
	d.shortNameIndex[rec.entry.ShortName] = rec
	d.longNameIndex[normalizeName(rec.displayName())] = rec
	d.order = append(d.order, rec)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StorageCluster returns this directory's own start cluster (0 for a root).
func (d *FatLfnDirectory) StorageCluster() int { return d.storage.StorageCluster() }

// VolumeLabel returns the volume-label entry's name, trimmed of trailing
// padding, and whether the directory carries one. Only roots do.
func (d *FatLfnDirectory) VolumeLabel() (string, bool) {
	if err := d.checkValid(); err != nil {
		return "", false
	}
	slot := d.storage.Label()
	if slot == nil {
		return "", false
	}
	return strings.TrimRight(string(slot[:11]), " "), true
}

// SetVolumeLabel installs or replaces the directory's volume-label entry.
// The label is space-padded or truncated to 11 bytes. The new slot becomes
// durable on the next Flush.
func (d *FatLfnDirectory) SetVolumeLabel(label string) error {
	if err := d.checkValid(); err != nil {
		return err
	}
	if d.readOnly {
		return fatErrors.ErrReadOnly
	}
	if !d.isRoot {
		return fatErrors.ErrInvalidArgument.WithMessage("volume label lives in the root directory only")
	}
	slot := make([]byte, directory.SlotSize)
	for i := 0; i < 11; i++ {
		slot[i] = ' '
	}
	copy(slot[:11], label)
	slot[11] = dirent.AttrVolumeLabel
	d.storage.SetLabel(slot)
	return nil
}

func (d *FatLfnDirectory) shortNameTaken(sn dirent.ShortName) bool {
	_, ok := d.shortNameIndex[sn]
	return ok
}

func (d *FatLfnDirectory) validateName(name string) (trimmed, key string, err error) {
	trimmed = strings.TrimSpace(name)
	if trimmed == "" {
		return "", "", fatErrors.ErrInvalidArgument.WithMessage("name cannot be empty")
	}
	if len(trimmed) > 255 {
		return "", "", fatErrors.ErrNameTooLong
	}
	key = normalizeName(trimmed)
	if _, exists := d.longNameIndex[key]; exists {
		return "", "", fatErrors.ErrAlreadyExists
	}
	return trimmed, key, nil
}

// AddFile creates a new, empty file named `name` in this directory.
func (d *FatLfnDirectory) AddFile(name string) (*fatfile.FatFile, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	if d.readOnly {
		return nil, fatErrors.ErrReadOnly
	}
	trimmed, key, err := d.validateName(name)
	if err != nil {
		return nil, err
	}

	sn, err := d.gen.GenerateUnique(d.shortNameTaken)
	if err != nil {
		return nil, err
	}

	now := d.now()
	entry := dirent.Entry{ShortName: sn, Created: now, LastAccessed: now, LastModified: now}

	rawSlots, err := buildSlots(trimmed, entry)
	if err != nil {
		return nil, err
	}
	if err := d.storage.AddSlots(rawSlots); err != nil {
		return nil, err
	}

	rec := &record{entry: entry, longName: trimmed, slots: rawSlots}
	d.shortNameIndex[sn] = rec
	d.longNameIndex[key] = rec
	d.order = append(d.order, rec)

	f := fatfile.New(d.table, d.device, d.clusterSize, d.filesOffset, rec, d.readOnly, d.closed)
	d.entryToFile[rec] = f
	return f, nil
}

// AddDirectory creates a new subdirectory named `name` in this directory.
// If adding the parent-side entry fails after the child's cluster has
// already been allocated, the cluster is freed before the error is returned.
func (d *FatLfnDirectory) AddDirectory(name string) (*FatLfnDirectory, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	if d.readOnly {
		return nil, fatErrors.ErrReadOnly
	}
	trimmed, key, err := d.validateName(name)
	if err != nil {
		return nil, err
	}

	sn, err := d.gen.GenerateUnique(d.shortNameTaken)
	if err != nil {
		return nil, err
	}

	now := d.now()
	entry := dirent.Entry{ShortName: sn, Attributes: dirent.AttrDirectory, Created: now, LastAccessed: now, LastModified: now}

	ad, entry, err := directory.CreateSub(d.table, d.clusterSize, d.filesOffset, d.device, d.StorageCluster(), entry)
	if err != nil {
		return nil, err
	}

	rawSlots, err := buildSlots(trimmed, entry)
	if err != nil {
		_ = d.table.FreeChain(int(entry.Cluster))
		return nil, err
	}
	if err := d.storage.AddSlots(rawSlots); err != nil {
		_ = d.table.FreeChain(int(entry.Cluster))
		return nil, err
	}

	if err := ad.Read(); err != nil {
		_ = d.table.FreeChain(int(entry.Cluster))
		return nil, err
	}

	sub, err := Open(ad, d.table, d.device, d.clusterSize, d.filesOffset, d.gen, d.StorageCluster(), false, d.readOnly, d.closed)
	if err != nil {
		_ = d.table.FreeChain(int(entry.Cluster))
		return nil, err
	}

	rec := &record{entry: entry, longName: trimmed, slots: rawSlots}
	d.shortNameIndex[sn] = rec
	d.longNameIndex[key] = rec
	d.order = append(d.order, rec)
	d.entryToDirectory[rec] = sub
	sub.selfRecord = rec

	return sub, nil
}

// OpenDirectory returns the façade for the subdirectory named `name`,
// constructing and caching it from its stored entry on first access. Entries
// parsed off disk (rather than created through AddDirectory this session)
// only become addressable sub-directories this way.
func (d *FatLfnDirectory) OpenDirectory(name string) (*FatLfnDirectory, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	rec := d.findRecord(name)
	if rec == nil {
		return nil, fatErrors.ErrNotFound
	}
	if !rec.entry.IsDirectory() {
		return nil, fatErrors.ErrNotADirectory
	}
	if sub, ok := d.entryToDirectory[rec]; ok {
		return sub, nil
	}

	chain := clusterchain.New(d.table, int(rec.entry.Cluster), d.clusterSize, d.filesOffset)
	ccd, err := directory.NewClusterChainDirectory(chain, d.device, d.clusterSize, false)
	if err != nil {
		return nil, err
	}
	ad := directory.NewAbstractDirectory(ccd)
	if err := ad.Read(); err != nil {
		return nil, err
	}

	sub, err := Open(ad, d.table, d.device, d.clusterSize, d.filesOffset, d.gen, d.StorageCluster(), false, d.readOnly, d.closed)
	if err != nil {
		return nil, err
	}
	sub.selfRecord = rec
	d.entryToDirectory[rec] = sub
	return sub, nil
}

// OpenFile returns the file handle for the file named `name`, constructing
// and caching it from its stored entry on first access.
func (d *FatLfnDirectory) OpenFile(name string) (*fatfile.FatFile, error) {
	if err := d.checkValid(); err != nil {
		return nil, err
	}
	rec := d.findRecord(name)
	if rec == nil {
		return nil, fatErrors.ErrNotFound
	}
	if rec.entry.IsDirectory() {
		return nil, fatErrors.ErrIsADirectory
	}
	if f, ok := d.entryToFile[rec]; ok {
		return f, nil
	}
	f := fatfile.New(d.table, d.device, d.clusterSize, d.filesOffset, rec, d.readOnly, d.closed)
	d.entryToFile[rec] = f
	return f, nil
}

func buildSlots(name string, entry dirent.Entry) ([][]byte, error) {
	lfnSlots, err := dirent.EncodeLFN(name, entry.ShortName.CheckSum())
	if err != nil {
		return nil, err
	}
	realBytes, err := entry.ToBytes()
	if err != nil {
		return nil, err
	}

	raw := make([][]byte, 0, len(lfnSlots)+1)
	for _, s := range lfnSlots {
		raw = append(raw, s.ToBytes())
	}
	raw = append(raw, realBytes)
	return raw, nil
}

// GetEntry looks up `name` (trimmed, case-insensitive) in the long-name
// index; if absent and `name` parses as a valid short name, falls back to
// the short-name index.
func (d *FatLfnDirectory) GetEntry(name string) (dirent.Entry, bool) {
	if err := d.checkValid(); err != nil {
		return dirent.Entry{}, false
	}
	key := normalizeName(name)
	if rec, ok := d.longNameIndex[key]; ok {
		return rec.entry, true
	}
	if sn, err := dirent.ShortNameFromString(strings.TrimSpace(name)); err == nil {
		if rec, ok := d.shortNameIndex[sn]; ok {
			return rec.entry, true
		}
	}
	return dirent.Entry{}, false
}

func (d *FatLfnDirectory) findRecord(name string) *record {
	key := normalizeName(name)
	if rec, ok := d.longNameIndex[key]; ok {
		return rec
	}
	if sn, err := dirent.ShortNameFromString(strings.TrimSpace(name)); err == nil {
		if rec, ok := d.shortNameIndex[sn]; ok {
			return rec
		}
	}
	return nil
}

// Remove unlinks `name` from this directory, freeing its cluster chain and
// rebuilding the directory's in-memory slot vector. Missing names and dot-entries are silently
// accepted: removing an absent name is a no-op, and "."/".." can never be
// removed since they are not addressable through the indexes at all.
func (d *FatLfnDirectory) Remove(name string) error {
	if err := d.checkValid(); err != nil {
		return err
	}
	if d.readOnly {
		return fatErrors.ErrReadOnly
	}
	rec := d.findRecord(name)
	if rec == nil {
		return nil
	}

	if err := d.table.FreeChain(int(rec.entry.Cluster)); err != nil {
		return err
	}

	delete(d.shortNameIndex, rec.entry.ShortName)
	delete(d.longNameIndex, normalizeName(rec.displayName()))
	delete(d.entryToFile, rec)
	delete(d.entryToDirectory, rec)
	d.removeFromOrder(rec)
	rec.invalid = true

	return d.rebuildAndWrite()
}

func (d *FatLfnDirectory) removeFromOrder(target *record) {
	kept := d.order[:0:0]
	for _, rec := range d.order {
		if rec != target {
			kept = append(kept, rec)
		}
	}
	d.order = kept
}

// MoveTo relocates the entry named `name` into `target` under `newName`,
// re-keying it with a freshly generated short name local to the target.
func (d *FatLfnDirectory) MoveTo(name string, target *FatLfnDirectory, newName string) error {
	if err := d.checkValid(); err != nil {
		return err
	}
	if err := target.checkValid(); err != nil {
		return err
	}
	if d.readOnly || target.readOnly {
		return fatErrors.ErrReadOnly
	}
	rec := d.findRecord(name)
	if rec == nil {
		return fatErrors.ErrNotFound
	}

	trimmed, key, err := target.validateName(newName)
	if err != nil {
		return err
	}

	sn, err := target.gen.GenerateUnique(target.shortNameTaken)
	if err != nil {
		return err
	}

	entry := rec.entry
	entry.ShortName = sn
	rawSlots, err := buildSlots(trimmed, entry)
	if err != nil {
		return err
	}
	if err := target.storage.AddSlots(rawSlots); err != nil {
		return err
	}

	delete(d.shortNameIndex, rec.entry.ShortName)
	delete(d.longNameIndex, normalizeName(rec.displayName()))
	movedFile := d.entryToFile[rec]
	movedDir := d.entryToDirectory[rec]
	delete(d.entryToFile, rec)
	delete(d.entryToDirectory, rec)
	d.removeFromOrder(rec)

	// rec itself relocates rather than being replaced: any handle already
	// holding this record (a FatFile's ref, or a sub-directory's selfRecord)
	// must keep tracking the same entry after the move instead of going
	// stale against an abandoned object.
	rec.entry = entry
	rec.longName = trimmed
	rec.slots = rawSlots

	target.shortNameIndex[sn] = rec
	target.longNameIndex[key] = rec
	target.order = append(target.order, rec)
	if movedFile != nil {
		target.entryToFile[rec] = movedFile
	}
	if movedDir != nil {
		target.entryToDirectory[rec] = movedDir
	}

	if err := d.rebuildAndWrite(); err != nil {
		return err
	}
	if target != d {
		return target.rebuildAndWrite()
	}
	return nil
}

// rebuildAndWrite regenerates the directory's slot vector in its storage
// backend from the current index order (plus the preserved dot slots). The
// slots reach the device only when the directory is next flushed.
func (d *FatLfnDirectory) rebuildAndWrite() error {
	d.storage.RemoveSlots(allIndices(len(d.storage.Slots())))

	var rebuilt [][]byte
	rebuilt = append(rebuilt, d.dotSlots...)
	for _, rec := range d.order {
		rebuilt = append(rebuilt, rec.slots...)
	}

	return d.storage.AddSlots(rebuilt)
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Flush flushes every cached open file, recursively flushes every cached
// subdirectory (aggregating failures instead of stopping at the first),
// rebuilds the on-disk slot vector from the current index order, and
// flushes the storage backend.
func (d *FatLfnDirectory) Flush() error {
	if err := d.checkValid(); err != nil {
		return err
	}
	var result *multierror.Error

	for _, f := range d.entryToFile {
		if err := f.Flush(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, sub := range d.entryToDirectory {
		if err := sub.Flush(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := d.rebuildAndWrite(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.storage.Flush(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Entries returns every entry in this directory's current iteration order
// (insertion order of the underlying index, not necessarily sorted).
func (d *FatLfnDirectory) Entries() []dirent.Entry {
	if err := d.checkValid(); err != nil {
		return nil
	}
	out := make([]dirent.Entry, len(d.order))
	for i, rec := range d.order {
		out[i] = rec.entry
	}
	return out
}

// NamedEntry pairs a directory entry with the display name it's
// addressable by (its long name if it has one, else its rendered short
// name).
type NamedEntry struct {
	Name  string
	Entry dirent.Entry
}

// List returns every entry in this directory's current iteration order,
// each paired with its display name. Listing tools should use this instead
// of Entries() when they need to show names alongside entries.
func (d *FatLfnDirectory) List() []NamedEntry {
	if err := d.checkValid(); err != nil {
		return nil
	}
	out := make([]NamedEntry, len(d.order))
	for i, rec := range d.order {
		out[i] = NamedEntry{Name: rec.displayName(), Entry: rec.entry}
	}
	return out
}

// Name returns the display name (long name if present, else the rendered
// short name) for the entry currently stored under `name`'s lookup key, or
// "" if not found. Exposed mainly for listing tools.
func (d *FatLfnDirectory) Name(name string) string {
	if err := d.checkValid(); err != nil {
		return ""
	}
	rec := d.findRecord(name)
	if rec == nil {
		return ""
	}
	return rec.displayName()
}
