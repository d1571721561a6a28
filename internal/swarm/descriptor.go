package swarm

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/joaovictorsl/bencoding"
	"github.com/zeebo/bencode"
)

// ErrFieldMissing is returned by ReadDescriptor for incomplete metainfo.
var ErrFieldMissing = errors.New("field missing")

// DescriptorExt is the file extension of every descriptor.
const DescriptorExt = ".torrent"

// DescriptorBuilder produces a descriptor for file announcing to announce
// (host:port) and returns the path it was written to.
type DescriptorBuilder interface {
	Build(file, announce string) (string, error)
}

// metainfo is the single-file torrent layout written by MetainfoBuilder.
type metainfo struct {
	Announce     string `bencode:"announce"`
	CreatedBy    string `bencode:"created by"`
	CreationDate int64  `bencode:"creation date"`
	Info         info   `bencode:"info"`
}

type info struct {
	Length      int64  `bencode:"length"`
	Name        string `bencode:"name"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
}

// MetainfoBuilder hashes a payload into a bencoded single-file metainfo.
type MetainfoBuilder struct {
	// Dir receives the descriptor files. Empty means os.TempDir().
	Dir string

	now func() time.Time
}

// Build implements DescriptorBuilder.
func (b *MetainfoBuilder) Build(file, announce string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat payload: %w", err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("payload %s is a directory", file)
	}

	pieceLength := PieceLength(st.Size())
	pieces, err := hashPieces(bufio.NewReaderSize(f, 1<<20), pieceLength)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}

	now := time.Now
	if b.now != nil {
		now = b.now
	}
	mi := metainfo{
		Announce:     "http://" + announce + "/announce",
		CreatedBy:    "horde",
		CreationDate: now().Unix(),
		Info: info{
			Length:      st.Size(),
			Name:        filepath.Base(file),
			PieceLength: pieceLength,
			Pieces:      pieces,
		},
	}
	data, err := bencode.EncodeBytes(mi)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}

	dir := b.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	out := filepath.Join(dir, "horde-"+uuid.NewString()+DescriptorExt)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}
	return out, nil
}

// PieceLength picks the piece size for a payload of size bytes, from 32KiB
// for small files up to 2MiB above 8GiB.
func PieceLength(size int64) int64 {
	const (
		mib = int64(1) << 20
		gib = int64(1) << 30
	)
	exp := 15
	switch {
	case size > 8*gib:
		exp = 21
	case size > 2*gib:
		exp = 20
	case size > 512*mib:
		exp = 19
	case size > 64*mib:
		exp = 18
	case size > 16*mib:
		exp = 17
	case size > 4*mib:
		exp = 16
	}
	return int64(1) << exp
}

func hashPieces(r io.Reader, pieceLength int64) (string, error) {
	buf := make([]byte, pieceLength)
	var pieces []byte
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n])
			pieces = append(pieces, sum[:]...)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return string(pieces), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Descriptor is the parsed form of a descriptor file.
type Descriptor struct {
	Announce    string
	Name        string
	Length      int
	PieceLength int
	Pieces      []string // 20-byte SHA-1 digests
	InfoHash    string   // hex encoded
}

// ReadDescriptor parses the descriptor at path.
func ReadDescriptor(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open descriptor: %w", err)
	}
	defer f.Close()
	return DecodeDescriptor(bufio.NewReader(f))
}

// DecodeDescriptor parses a bencoded descriptor from r.
func DecodeDescriptor(r *bufio.Reader) (*Descriptor, error) {
	data, err := bencoding.DecodeTo[map[string]interface{}](r)
	if err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	d := &Descriptor{}
	if d.Announce, err = getField[string]("announce", data); err != nil {
		return nil, err
	}
	infoMap, err := getField[map[string]interface{}]("info", data)
	if err != nil {
		return nil, err
	}
	if d.Name, err = getField[string]("name", infoMap); err != nil {
		return nil, err
	}
	if d.Length, err = getField[int]("length", infoMap); err != nil {
		return nil, err
	}
	if d.PieceLength, err = getField[int]("piece length", infoMap); err != nil {
		return nil, err
	}
	pieces, err := getField[string]("pieces", infoMap)
	if err != nil {
		return nil, err
	}
	if len(pieces)%sha1.Size != 0 {
		return nil, fmt.Errorf("pieces length %d is not a multiple of %d", len(pieces), sha1.Size)
	}
	for i := 0; i < len(pieces); i += sha1.Size {
		d.Pieces = append(d.Pieces, pieces[i:i+sha1.Size])
	}

	raw, err := bencode.EncodeBytes(infoMap)
	if err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}
	sum := sha1.Sum(raw)
	d.InfoHash = hex.EncodeToString(sum[:])
	return d, nil
}

func getField[T any](field string, source map[string]interface{}) (T, error) {
	var zero T
	v, ok := source[field]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s is not a %v, it is a %v", field, reflect.TypeOf(zero), reflect.TypeOf(v))
	}
	return typed, nil
}
