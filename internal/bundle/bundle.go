// Package bundle packages the swarm runtime shipped to every host.
//
// The runtime directory is archived once as a gzip'd tarball whose single top
// level entry is the directory itself, so `tar zxf` on a host recreates
// <staging>/<runtime name>. The archive is cached next to the runtime and
// reused by later runs.
package bundle

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// DefaultPath is where the archive for runtimeDir is cached unless configured.
func DefaultPath(runtimeDir string) string {
	return filepath.Clean(runtimeDir) + ".tar.gz"
}

// Ensure returns the archive of runtimeDir at bundlePath, building it only if
// it does not exist yet.
func Ensure(runtimeDir, bundlePath string) (string, error) {
	if bundlePath == "" {
		bundlePath = DefaultPath(runtimeDir)
	}
	if _, err := os.Stat(bundlePath); err == nil {
		return bundlePath, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat bundle: %w", err)
	}

	log.Printf("packaging runtime %s into %s", runtimeDir, bundlePath)
	tmp, err := os.CreateTemp(filepath.Dir(bundlePath), ".bundle-*")
	if err != nil {
		return "", fmt.Errorf("create bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, runtimeDir); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), bundlePath); err != nil {
		return "", fmt.Errorf("install bundle: %w", err)
	}
	return bundlePath, nil
}

func write(w io.Writer, runtimeDir string) error {
	root := filepath.Clean(runtimeDir)
	st, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("runtime dir: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("runtime dir %s is not a directory", root)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	parent := filepath.Dir(root)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive runtime: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive runtime: %w", err)
	}
	return gz.Close()
}
