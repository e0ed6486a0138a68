// Package cache stores synthesized speech so a page narrated twice does not
// hit the speech service again. It has an in-memory LRU (L1) and a
// zstd-compressed disk cache (L2) with TTL cleanup.
package cache
