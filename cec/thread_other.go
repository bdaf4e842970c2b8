//go:build !linux

package cec

func setupThread(name string, priority int) error { return nil }
