// Package cmd implements the skedge command line interface.
package cmd
