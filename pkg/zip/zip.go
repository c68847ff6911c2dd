package zip

import (
	"archive/zip"
	"bytes"
	"sort"
)

// ArchiveFiles packs a filename -> content mapping into a zip archive,
// entries in stable filename order.
func ArchiveFiles(files map[string]string) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
