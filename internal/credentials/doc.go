// Package credentials persists the OAuth credential record in a
// line-oriented KEY=value file shared with other tooling. The store owns
// every key with the GRANOLA_ prefix and replaces them together on each
// save; all other entries in the file survive untouched. The merge itself
// is a pure function over two key-value maps so the preservation behavior
// is testable without a filesystem.
package credentials
