package contentsystem

import "strings"

// PatchTarget pairs a V2 Diff entry with the destination entry it
// produces once applied, tagged with the product id it belongs to.
type PatchTarget struct {
	ProductID   string
	Diff        DiffV2
	Destination DepotEntry
}

// DiffReport is the result of comparing a desired (new) manifest's file
// lists against an optional previously-installed (old) manifest's, plus
// any available patch file lists (spec §4.4 / §3).
type DiffReport struct {
	Download       []FileList
	Patches        []PatchTarget
	Directories    []string
	Deleted        []string
	TotalFileCount int
}

type diffKey struct {
	path string
}

func keyOf(path string) diffKey {
	return diffKey{path: strings.ToLower(normalizePath(path))}
}

// Diff computes a DiffReport from the desired file lists, the
// optionally-empty previously-installed file lists, and any patch file
// lists resolved via the patch index (spec §4.4).
func Diff(newLists, oldLists, patchLists []FileList) DiffReport {
	oldByKey := map[diffKey]DepotEntry{}
	for _, fl := range oldLists {
		for _, e := range fl.Files {
			if e.IsDirectory() {
				continue
			}
			oldByKey[keyOf(e.Path())] = e
		}
	}

	patchByKey := map[diffKey]PatchTarget{}
	for _, fl := range patchLists {
		for _, e := range fl.Files {
			if e.V2 == nil || e.V2.Diff == nil {
				continue
			}
			patchByKey[keyOf(e.V2.Diff.TargetPath)] = PatchTarget{
				ProductID: fl.ProductID,
				Diff:      *e.V2.Diff,
			}
		}
	}

	newKeys := map[diffKey]bool{}
	report := DiffReport{}

	for _, fl := range newLists {
		var keptFiles []DepotEntry
		for _, e := range fl.Files {
			k := keyOf(e.Path())
			newKeys[k] = true

			if e.IsDirectory() {
				report.Directories = append(report.Directories, e.Path())
				continue
			}
			report.TotalFileCount++

			if pt, ok := patchByKey[k]; ok {
				pt.Destination = e
				report.Patches = append(report.Patches, pt)
				continue
			}

			if old, ok := oldByKey[k]; ok && entriesUnchanged(e, old) {
				continue
			}

			keptFiles = append(keptFiles, e)
		}
		if len(keptFiles) == 0 {
			continue
		}
		kept := NewFileList(fl.ProductID, keptFiles)
		kept.IsDependency = fl.IsDependency
		if fl.SFC != nil && listReferencesSFC(keptFiles) {
			kept.SFC = fl.SFC
		}
		report.Download = append(report.Download, kept)
	}

	for k, old := range oldByKey {
		if !newKeys[k] {
			report.Deleted = append(report.Deleted, old.Path())
		}
	}

	return report
}

// entriesUnchanged reports whether the new entry's content is identical
// to the old entry's, per the comparison rules of spec §4.4.
func entriesUnchanged(newE, old DepotEntry) bool {
	// A new V2 file with no chunks and no SFC reference is always
	// re-created empty, never compared.
	if newE.V2 != nil && newE.V2.File != nil && len(newE.V2.File.Chunks) == 0 && newE.V2.File.SFCRef == nil {
		return false
	}

	// V2 file with a single chunk identical to old's single chunk.
	if newE.V2 != nil && newE.V2.File != nil && old.V2 != nil && old.V2.File != nil {
		nf, of := newE.V2.File, old.V2.File
		if len(nf.Chunks) == 1 && len(of.Chunks) == 1 && nf.Chunks[0].MD5 == of.Chunks[0].MD5 {
			return true
		}
		if nf.MD5 != nil && of.MD5 != nil && *nf.MD5 == *of.MD5 {
			return true
		}
		if nf.SHA256 != nil && of.SHA256 != nil && *nf.SHA256 == *of.SHA256 {
			return true
		}
		return false
	}

	// V1 -> V1.
	if newE.V1 != nil && newE.V1.File != nil && old.V1 != nil && old.V1.File != nil {
		return newE.V1.File.MD5 == old.V1.File.MD5
	}

	// Cross-generation: compare the V1 md5 against the V2 whole-file md5
	// or its sole chunk's md5.
	v1MD5, v1OK := extractV1MD5(newE, old)
	if v1OK {
		v2Entry := newE
		if newE.V1 != nil {
			v2Entry = old
		}
		return matchesV2MD5(v2Entry, v1MD5)
	}

	return false
}

func extractV1MD5(a, b DepotEntry) (string, bool) {
	if a.V1 != nil && a.V1.File != nil && b.V2 != nil && b.V2.File != nil {
		return a.V1.File.MD5, true
	}
	if b.V1 != nil && b.V1.File != nil && a.V2 != nil && a.V2.File != nil {
		return b.V1.File.MD5, true
	}
	return "", false
}

func matchesV2MD5(v2Entry DepotEntry, md5 string) bool {
	if v2Entry.V2 == nil || v2Entry.V2.File == nil {
		return false
	}
	f := v2Entry.V2.File
	if f.MD5 != nil && *f.MD5 == md5 {
		return true
	}
	if len(f.Chunks) == 1 && f.Chunks[0].MD5 == md5 {
		return true
	}
	return false
}

func listReferencesSFC(files []DepotEntry) bool {
	for _, e := range files {
		if e.V2 != nil && e.V2.File != nil && e.V2.File.SFCRef != nil {
			return true
		}
	}
	return false
}

// RequiredSpace walks a DiffReport and sums the sizes of entries whose
// on-disk status is currently NotInitialized, plus diff+destination size
// for each patch (spec §4.7 required_space).
func RequiredSpace(report DiffReport, statusOf func(path string) FileStatus) int64 {
	var total int64
	for _, fl := range report.Download {
		for _, e := range fl.Files {
			if statusOf(e.Path()) == StatusNotInitialized {
				total += e.Size()
			}
		}
	}
	for _, p := range report.Patches {
		var diffSize int64
		for _, c := range p.Diff.Chunks {
			diffSize += int64(c.Size)
		}
		total += diffSize + p.Destination.Size()
	}
	return total
}
