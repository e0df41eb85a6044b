// Package platform isolates OS-specific file opening for source entries.
package platform
