// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"testing"
	"testing/fstest"
)

func TestOrderedEmbedsInitialSchema(t *testing.T) {
	files, err := Ordered()
	if err != nil {
		t.Fatalf("ordered: %v", err)
	}
	if len(files) == 0 || files[0].Name != "001_init.sql" || files[0].Version != 1 {
		t.Fatalf("unexpected migrations %+v", files)
	}
	if len(files[0].Checksum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", files[0].Checksum)
	}
}

func TestLoadSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"README.md":      {Data: []byte("ignored")},
	}

	files, err := load(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(files) != 2 || files[0].Version != 2 || files[1].Version != 10 {
		t.Fatalf("unexpected order %+v", files)
	}
}

func TestLoadRejectsBadNames(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"no prefix": {"init.sql": {Data: []byte("SELECT 1;")}},
		"zero":      {"000_init.sql": {Data: []byte("SELECT 1;")}},
		"duplicate": {
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"1_b.sql":   {Data: []byte("SELECT 1;")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(fsys); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
