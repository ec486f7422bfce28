// Package playlist imports Windows Media Player (WPL) playlists into the
// registry.
//
// WPL files written on another machine usually carry paths that do not
// exist here: drive-letter paths (C:\Videos\a.mp4), UNC shares
// (\\server\share\a.mp4) or paths relative to the playlist. Each entry is
// resolved against registered movies in order:
//   - the path itself, when absolute
//   - the path relative to the playlist file
//   - the file name, when exactly one registered movie has it
//
// Entries that resolve to no movie are reported and left out of the
// playlist.
package playlist
