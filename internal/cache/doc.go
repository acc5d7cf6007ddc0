// Package cache stores generated Markdown for documents across tiers: an
// in-process memory tier, an optional shared redis tier and a disk tier laid
// out as StoragePath/<documentID>/<version>.md. Every tier writes atomically
// (replace-or-absent) and can drop all versions of a document at once.
// Entries carry the source version they were generated from; callers compare
// it with the live document before serving.
package cache
