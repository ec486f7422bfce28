// Package scanner walks a directory tree into the registry.
//
// Every folder becomes a LibraryItem and every allow-listed video file is
// probed, hashed and registered as a Movie attached to its folder. Files
// whose content hash is already known are not re-imported; the existing
// movie is attached instead. Subfolders and files are processed
// concurrently, with extraction and directory reads admitted by a
// throttle.Controller. A folder is marked scanned once all of its children
// have finished, so an interrupted scan can be resumed by scanning the same
// root again.
//
// The default Extractor runs ffprobe and hashes the file size together with
// three 1 MiB samples using BLAKE2b-256.
package scanner
