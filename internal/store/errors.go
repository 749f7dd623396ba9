package store

import "errors"

// ErrNotFound is returned for an unknown digest, accession number,
// attachment index, or proof key.
var ErrNotFound = errors.New("not found")

// ErrAttachmentTooLarge is returned when an attachment stream exceeds the
// configured size limit. Detected during staging; nothing is committed.
var ErrAttachmentTooLarge = errors.New("attachment too large")
