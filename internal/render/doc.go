// Package render generates derived assets from registered movies.
//
// Mosaics are contact sheets: frames sampled evenly across a movie are
// extracted with ffmpeg, fitted into a grid with imaging, optionally
// labelled with their timestamps and encoded as JPEG, PNG or (through
// libvips) WebP. Previews are short silent clips cut and concatenated by a
// single ffmpeg filter graph.
//
// Every render runs under a deadline. Exceeding it yields ErrTimeout; a
// failing ffmpeg process yields ErrFFmpeg. Outputs are written to a
// temporary name and renamed into place, so a failed render leaves nothing
// behind.
package render
