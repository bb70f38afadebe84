// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644

	// MaxUniqueDirAttempts bounds the number of candidates tried by MkdirUnique.
	MaxUniqueDirAttempts = 1000
)

var ErrTooManyCollisions = errors.New("too many existing directories with the same name")

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

func WriteFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, DefaultFilePerm)
}

// MkdirUnique creates a new directory name inside where (creating where if needed)
// without ever reusing an existing file or directory. If name is taken,
// name(1), name(2), ... are tried in order. Each attempt is a single os.Mkdir,
// so concurrent callers never get the same directory.
// Returns the absolute path of the created directory.
func MkdirUnique(where, name string) (string, error) {
	if err := MkdirAll(where); err != nil {
		return "", err
	}
	candidate := name
	for i := 1; i <= MaxUniqueDirAttempts; i++ {
		path := filepath.Join(where, candidate)
		err := os.Mkdir(path, DefaultDirPerm)
		if err == nil {
			return filepath.Abs(path)
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		candidate = fmt.Sprintf("%v(%v)", name, i)
	}
	return "", fmt.Errorf("%v/%v: %w", where, name, ErrTooManyCollisions)
}

// CopyFile atomically copies oldFile to newFile preserving permissions and modification time.
func CopyFile(oldFile, newFile string) error {
	oldf, err := os.Open(oldFile)
	if err != nil {
		return err
	}
	defer oldf.Close()
	stat, err := oldf.Stat()
	if err != nil {
		return err
	}
	tmpFile := newFile + ".tmp"
	newf, err := os.OpenFile(tmpFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stat.Mode()&os.ModePerm)
	if err != nil {
		return err
	}
	defer newf.Close()
	if _, err := io.Copy(newf, oldf); err != nil {
		return err
	}
	if err := newf.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpFile, stat.ModTime(), stat.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpFile, newFile)
}

// HandleInterrupts closes shutdown chan on first SIGINT
// (expecting that the program will gracefully shutdown and exit)
// and terminates the process on second SIGINT.
func HandleInterrupts(shutdown chan struct{}) {
	go func() {
		c := make(chan os.Signal, 2)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		close(shutdown)
		fmt.Fprint(os.Stderr, "SIGINT: finishing current campaign...\n")
		<-c
		fmt.Fprint(os.Stderr, "SIGINT: terminating\n")
		os.Exit(int(syscall.SIGINT))
	}()
}
