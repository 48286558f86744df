// Package organizer places exported files into the id-keyed output tree.
//
// Every placement goes through a temp file in the destination directory and a
// rename, so a partially written file never appears under its final name.
// Placing identical content twice is a no-op; placing different content over
// an existing file is a *ConflictError.
package organizer
