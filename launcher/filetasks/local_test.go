package filetasks

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExpand_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "plugin-bundle.zip")
	writeZip(t, archive, map[string]string{
		"my-plugin/META-INF/plugin.xml": "<plugin/>",
		"my-plugin/lib/a.jar":           "jar",
	})

	dst := filepath.Join(dir, "repo")
	require.NoError(t, Local{}.Expand(archive, dst))
	assert.Equal(t, "<plugin/>", readFile(t, filepath.Join(dst, "my-plugin", "META-INF", "plugin.xml")))
	assert.Equal(t, "jar", readFile(t, filepath.Join(dst, "my-plugin", "lib", "a.jar")))
}

func TestExpand_JarIsReadAsZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "plugin.jar")
	writeZip(t, archive, map[string]string{"x/y.txt": "y"})

	dst := filepath.Join(dir, "repo")
	require.NoError(t, Local{}.Expand(archive, dst))
	assert.Equal(t, "y", readFile(t, filepath.Join(dst, "x", "y.txt")))
}

func TestExpand_ZipRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escaped.txt": "boom"})

	dst := filepath.Join(dir, "repo")
	err := Local{}.Expand(archive, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal file path")
	_, statErr := os.Stat(filepath.Join(dir, "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExpand_TarGz(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plugin.tar.gz", "plugin.tgz"} {
		archive := filepath.Join(dir, name)
		writeTarGz(t, archive, map[string]string{"p/readme.txt": name})

		dst := filepath.Join(dir, "repo-"+name)
		require.NoError(t, Local{}.Expand(archive, dst))
		assert.Equal(t, name, readFile(t, filepath.Join(dst, "p", "readme.txt")))
	}
}

func TestExpand_TarGzRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tgz")
	writeTarGz(t, archive, map[string]string{"../../escaped.txt": "boom"})

	assert.Error(t, Local{}.Expand(archive, filepath.Join(dir, "repo")))
}

func TestExpand_TarGzDotRoot(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "plugin.tgz")

	// Laid out the way "tar -czf plugin.tgz -C dir ." writes it.
	f, err := os.Create(archive)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, name := range []string{"./", "./plugin/"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0755, Typeflag: tar.TypeDir}))
	}
	body := "hello"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "./plugin/a.txt",
		Mode:     0644,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
	}))
	_, err = tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dst := filepath.Join(dir, "repo")
	require.NoError(t, Local{}.Expand(archive, dst))
	assert.Equal(t, body, readFile(t, filepath.Join(dst, "plugin", "a.txt")))
}

func TestSafeJoin(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "repo")

	path, err := safeJoin(dest, "./")
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	path, err = safeJoin(dest, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "a", "b.txt"), path)

	_, err = safeJoin(dest, "../repo-sibling/x")
	assert.Error(t, err)
	_, err = safeJoin(dest, "..")
	assert.Error(t, err)
}

func TestExpand_Unsupported(t *testing.T) {
	err := Local{}.Expand(filepath.Join(t.TempDir(), "plugin.rar"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive type")
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("a.zip"))
	assert.True(t, IsArchive("a.JAR"))
	assert.True(t, IsArchive("a.tar.gz"))
	assert.True(t, IsArchive("a.tgz"))
	assert.False(t, IsArchive("a-plugin"))
	assert.False(t, IsArchive("a.tar"))
}

func TestCopyDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "my-plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "plugin.xml"), []byte("<plugin/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib", "b.jar"), []byte("b"), 0600))

	dst := filepath.Join(t.TempDir(), "repo", "my-plugin")
	require.NoError(t, Local{}.CopyDirectory(src, dst))

	assert.Equal(t, "<plugin/>", readFile(t, filepath.Join(dst, "plugin.xml")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "lib", "b.jar")))
	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dst, "lib", "b.jar"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestCopyDirectory_SourceMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.Error(t, Local{}.CopyDirectory(file, t.TempDir()))
	assert.Error(t, Local{}.CopyDirectory(filepath.Join(t.TempDir(), "missing"), t.TempDir()))
}

func TestMakeExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	base := t.TempDir()
	bin := filepath.Join(base, "bin")
	jsw := filepath.Join(base, "bin", "jsw", "linux-x86-64")
	require.NoError(t, os.MkdirAll(jsw, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "nexus"), []byte("#!/bin/sh\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(jsw, "wrapper"), []byte("bin"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "nexus.bat"), []byte("@echo"), 0644))

	l := Local{}
	require.NoError(t, l.MakeExecutable(base, "nexus"))
	require.NoError(t, l.MakeExecutable(base, "wrapper"))

	for path, want := range map[string]os.FileMode{
		filepath.Join(bin, "nexus"):     0744,
		filepath.Join(jsw, "wrapper"):   0744,
		filepath.Join(bin, "nexus.bat"): 0644,
	} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, want, info.Mode().Perm(), path)
	}
}
