package asset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/labiraus/svo-tracer-sub000/builder"
	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/types"
)

func init() {
	log.Discard()
}

func testTree(t *testing.T) *octree.Octree {
	geo := geometry.NewSphere(types.Vec3{0.5, 0.5, 0.5}, 0.3, [3]uint8{10, 20, 30})
	tree, _, err := builder.Build(geo, builder.Options{BaseDepth: 1, MaxDepth: 4})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestStoreRoundTrip(t *testing.T) {
	tree := testTree(t)

	type spec struct {
		opts        []StoreOption
		expZstdFile bool
	}
	specs := []spec{
		{nil, false},
		{[]StoreOption{WithCompression()}, true},
	}

	for index, s := range specs {
		dir := filepath.Join(t.TempDir(), "trees")
		store, err := NewStore(dir, s.opts...)
		if err != nil {
			t.Fatal(err)
		}

		if store.Exists("sphere") {
			t.Fatalf("[spec %d] expected empty store", index)
		}
		if err = store.Save("sphere", tree); err != nil {
			t.Fatalf("[spec %d] save: %v", index, err)
		}
		if !store.Exists("sphere") {
			t.Fatalf("[spec %d] expected saved tree to exist", index)
		}

		data, err := os.ReadFile(filepath.Join(dir, "sphere"+TreeExt))
		if err != nil {
			t.Fatal(err)
		}
		if isZstd := bytes.HasPrefix(data, zstdMagic); isZstd != s.expZstdFile {
			t.Fatalf("[spec %d] expected zstd file to be %t; got %t", index, s.expZstdFile, isZstd)
		}

		loaded, err := store.Load("sphere")
		if err != nil {
			t.Fatalf("[spec %d] load: %v", index, err)
		}
		if !loaded.Equal(tree) {
			t.Fatalf("[spec %d] expected loaded tree to match the original", index)
		}

		names, err := store.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(names) != 1 || names[0] != "sphere" {
			t.Fatalf("[spec %d] expected [sphere]; got %v", index, names)
		}

		if err = store.Delete("sphere"); err != nil {
			t.Fatal(err)
		}
		if store.Exists("sphere") {
			t.Fatalf("[spec %d] expected deleted tree to be gone", index)
		}
		store.Close()
	}
}

func TestStoreReadsEitherEncoding(t *testing.T) {
	tree := testTree(t)
	dir := t.TempDir()

	compressed, err := NewStore(dir, WithCompression())
	if err != nil {
		t.Fatal(err)
	}
	defer compressed.Close()
	plain, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer plain.Close()

	if err = compressed.Save("a", tree); err != nil {
		t.Fatal(err)
	}
	if err = plain.Save("b", tree); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"a", "b"} {
		for _, store := range []*Store{plain, compressed} {
			loaded, err := store.Load(name)
			if err != nil {
				t.Fatalf("load %s: %v", name, err)
			}
			if !loaded.Equal(tree) {
				t.Fatalf("expected tree %s to match the original", name)
			}
		}
	}
}

func TestStoreErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err = store.Load("missing"); !errors.Is(err, ErrTreeNotFound) {
		t.Fatalf("expected ErrTreeNotFound; got %v", err)
	}
	if err = store.Delete("missing"); !errors.Is(err, ErrTreeNotFound) {
		t.Fatalf("expected ErrTreeNotFound; got %v", err)
	}

	type spec struct {
		name    string
		payload []byte
	}
	specs := []spec{
		{"empty", nil},
		{"truncated", []byte{1, 0, 0, 0, 0, 0xff}},
		{"badzstd", append(append([]byte{}, zstdMagic...), 0xde, 0xad, 0xbe, 0xef)},
	}
	for index, s := range specs {
		if err = os.WriteFile(filepath.Join(dir, s.name+TreeExt), s.payload, 0644); err != nil {
			t.Fatal(err)
		}
		_, err = store.Load(s.name)
		if !errors.Is(err, octree.ErrCorrupt) {
			t.Fatalf("[spec %d] expected ErrCorrupt; got %v", index, err)
		}
		if errors.Is(err, ErrTreeNotFound) {
			t.Fatalf("[spec %d] corrupt tree reported as missing", index)
		}
	}

	for _, name := range []string{"", "../escape", ".hidden", "a/b"} {
		if err = store.Save(name, testTree(t)); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q; got %v", name, err)
		}
	}
}

func TestListMissingDir(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	names, err := store.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("expected no trees; got %v, %v", names, err)
	}
}
