// Package files lists the text files a search should consider.
//
// Lister walks a directory in lexical order. It skips hidden entries, paths
// matched by a .gitignore or .ignore file in any listed directory or by extra
// exclude patterns, and files whose first SniffLen bytes contain a NUL byte
// or are not valid UTF-8. An ignore file's rules apply below its own
// directory and override those of its parents.
package files
