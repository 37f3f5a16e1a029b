// Package testsupport holds shared helpers for package tests: temp-dir
// configs, store setup for either backend, and a scripted generator.
package testsupport
