// Package encoder turns log calls into bulk API records.
package encoder
