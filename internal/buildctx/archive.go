package buildctx

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

const (
	// DescriptorName is the conventional file name the engine looks for in a
	// build context.
	DescriptorName = "Dockerfile"

	// DescriptorMode is the permission set recorded for the descriptor entry.
	DescriptorMode = 0o644

	// DefaultDescriptor is the descriptor built when nothing else is configured.
	DefaultDescriptor = "FROM alpine:3.15\nRUN touch build-test.txt"
)

// ErrArchive is returned when the build context cannot be serialized.
var ErrArchive = errors.New("build context archive failed")

// Archive wraps content as the single descriptor entry of a tar archive and
// gzips the result at the default compression level.
func Archive(content string) ([]byte, error) {
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     DescriptorName,
		Mode:     DescriptorMode,
		Size:     int64(len(content)),
		Format:   tar.FormatGNU,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("%w: write header: %v", ErrArchive, err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrArchive, DescriptorName, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close tar: %v", ErrArchive, err)
	}

	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: compress: %v", ErrArchive, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finish gzip: %v", ErrArchive, err)
	}

	return out.Bytes(), nil
}

// MustArchive is like Archive but panics on failure. It is meant for fixed,
// known-good descriptors where a serialization error is a programming bug.
func MustArchive(content string) []byte {
	b, err := Archive(content)
	if err != nil {
		panic(err)
	}
	return b
}
