package solvpool

import "io"

// SystemHandle is the @System repository's ingestion seam (spec.md §4.3
// step 2): loading product descriptors and the RPM database itself. Both
// are named external collaborators per spec.md §1 ("the RPM... parsers").
type SystemHandle interface {
	RepoHandle
	AddProducts(dir string, flags LoadFlags) error
	AddRPMDB(flags LoadFlags) error
}

// RPMMDHandle is the rpm-md ingestion seam (spec.md §4.3 "rpm-md path").
type RPMMDHandle interface {
	RepoHandle
	// AddRepomdIndex ingests repodata/repomd.xml, making Lookup available.
	AddRepomdIndex(r io.Reader) error
	// Lookup resolves one repomd <data type="..."> entry, returning its
	// relative location and declared checksum (spec.md §4.4: "chksum,
	// chksumtype = d.pool.lookup_bin_checksum(...)").
	Lookup(dataType string) (location string, checksumHex string, ok bool)
	AddPrimary(r io.Reader, flags LoadFlags) error
	AddUpdateinfo(r io.Reader, flags LoadFlags) error
}

// SusetagsHandle is the yast2/susetags ingestion seam (spec.md §4.3 "yast2
// (susetags) path").
type SusetagsHandle interface {
	RepoHandle
	AddContentIndex(r io.Reader) error
	// IndexEntries lists every index entry's filename, for the extension
	// discovery rule in spec.md §4.3 ("packages.XX" scan).
	IndexEntries() []string
	AddPackages(r io.Reader, flags LoadFlags) error
	AddPackagesLang(r io.Reader, flags LoadFlags) error
}

// CommandlineHandle is the @commandline ingestion seam (spec.md §4.5
// "Command-line packages").
type CommandlineHandle interface {
	RepoHandle
	AddRPM(path string, flags LoadFlags) (ID, error)
}
