// Package cache provides the persistent, content-addressed caches used by the
// synthesis pipeline. Annotations and audio bookkeeping live in an embedded
// SQLite database; rendered audio lives in a directory of zstd-compressed PCM
// files. An LRU evictor keeps the audio cache under a byte and an entry
// ceiling.
package cache
