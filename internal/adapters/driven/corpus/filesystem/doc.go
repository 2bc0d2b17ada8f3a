// Package filesystem provides the vault corpus: a folder of markdown notes
// read with goldmark, YAML frontmatter and wikilinks, watched with fsnotify.
package filesystem
